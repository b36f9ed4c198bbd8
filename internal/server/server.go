package server

import (
	"os"

	"github.com/uatdecode/uatd/internal/uat"
	"github.com/uatdecode/uatd/internal/update"
)

// Server coordinates the frame fan-out dispatcher and the admin HTTP
// surface (manifest download, status, signed update install).
type Server struct {
	dispatcher      *Dispatcher
	storageDir      string
	manifestSigning ManifestSigningOptions
	enableAdmin     bool
	updateInstaller *update.Installer
}

// NewServer constructs a Server from opts, creating StorageDir if it does
// not already exist.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	return &Server{
		dispatcher:      NewDispatcher(opts.SubscriberBuffer),
		storageDir:      storageDir,
		manifestSigning: opts.ManifestSigning,
		enableAdmin:     opts.EnableAdmin && opts.UpdateInstaller != nil,
		updateInstaller: opts.UpdateInstaller,
	}, nil
}

// Close releases server resources. Listeners and HTTP servers built on top
// of Server are closed independently by their owner.
func (s *Server) Close() error { return nil }

// Publish fans a decoded frame out to every connected raw, JSON, and
// WebSocket subscriber. rec is nil for uplink frames, which carry no ADS-B
// record and so reach only the raw feed.
func (s *Server) Publish(raw uat.RawFrame, rec *uat.AdsbRecord) {
	s.dispatcher.Publish(Frame{Raw: raw, Record: rec})
}

// Dispatcher exposes the underlying fan-out broker so raw and JSON
// listeners can subscribe directly.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }
