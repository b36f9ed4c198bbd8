package server

import (
	"github.com/uatdecode/uatd/internal/update"
)

// ManifestSigningOptions configures detached JWS signing of the session
// output manifest offered over /manifest.
type ManifestSigningOptions struct {
	PrivateKeyPath  string
	CertificatePath string
}

// Options configures server creation.
type Options struct {
	// StorageDir is where session captures and reports are written; the
	// /manifest endpoint hashes every file found under it.
	StorageDir string

	// ManifestSigning, if PrivateKeyPath is set, causes /manifest to
	// include a detached JWS signature alongside the manifest body.
	ManifestSigning ManifestSigningOptions

	// SubscriberBuffer bounds how many pending frames a slow raw, JSON, or
	// WebSocket subscriber may accumulate before frames start dropping for
	// it. Defaults to 64.
	SubscriberBuffer int

	// EnableAdmin exposes /admin/update for installing signed dictionary
	// and rule-pack archives. Requires UpdateInstaller.
	EnableAdmin bool

	UpdateInstaller *update.Installer
}
