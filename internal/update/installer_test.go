package update

import (
	"archive/zip"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uatdecode/uatd/internal/common"
	"github.com/uatdecode/uatd/internal/crypto"
	"github.com/uatdecode/uatd/internal/manifest"
)

func generateSigner(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "uatd test signer"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return key, certPEM
}

func pemEncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func buildUpdateArchive(t *testing.T, dir string, version string, key *rsa.PrivateKey) string {
	t.Helper()
	stage := filepath.Join(dir, "stage-"+version)
	if err := os.MkdirAll(filepath.Join(stage, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(stage, "VERSION"), version)
	writeFile(t, filepath.Join(stage, "LICENSE"), "test license")
	writeFile(t, filepath.Join(stage, "data", "addresses.dict.json"), `{"version":"1"}`)

	items := []manifest.Item{}
	for _, rel := range []string{"VERSION", "LICENSE", "data/addresses.dict.json"} {
		hash, size, err := common.Sha256OfFile(filepath.Join(stage, rel))
		if err != nil {
			t.Fatal(err)
		}
		items = append(items, manifest.Item{Path: rel, Size: size, Sha256: hash, Type: "other"})
	}
	mani := manifest.Manifest{ShaAlgo: "sha256", Items: items}
	maniBytes, err := json.Marshal(mani)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stage, "MANIFEST.json"), maniBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	jws, err := crypto.SignDetachedJWS(maniBytes, pemEncodePrivateKey(key))
	if err != nil {
		t.Fatal(err)
	}
	sigBytes, err := json.Marshal(jws)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stage, "SIGNATURE.jws"), sigBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(dir, version+".dictupdate.zip")
	zipDir(t, stage, archivePath)
	return archivePath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func zipDir(t *testing.T, srcDir, destZip string) {
	t.Helper()
	out, err := os.Create(destZip)
	if err != nil {
		t.Fatal(err)
	}
	defer out.Close()
	w := zip.NewWriter(out)
	defer w.Close()

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		fw, err := w.Create(rel)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(fw, src)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInstallFromArchiveActivatesRelease(t *testing.T) {
	key, certPEM := generateSigner(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	writeFile(t, certPath, string(certPEM))

	archive := buildUpdateArchive(t, dir, "2026.08.01", key)

	installer, err := NewInstaller(Options{
		InstallRoot: filepath.Join(dir, "install"),
		CertPath:    certPath,
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := installer.InstallFromArchive(archive)
	if err != nil {
		t.Fatal(err)
	}
	if result.Version != "2026.08.01" {
		t.Errorf("Version = %q", result.Version)
	}

	version, err := installer.InstalledVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != "2026.08.01" {
		t.Errorf("InstalledVersion = %q", version)
	}

	dataDir := installer.CurrentDataDir()
	if _, err := os.Stat(filepath.Join(dataDir, "addresses.dict.json")); err != nil {
		t.Errorf("expected payload file present in current data dir: %v", err)
	}
}

func TestInstallFromArchiveRejectsOlderVersion(t *testing.T) {
	key, certPEM := generateSigner(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	writeFile(t, certPath, string(certPEM))

	installer, err := NewInstaller(Options{InstallRoot: filepath.Join(dir, "install"), CertPath: certPath})
	if err != nil {
		t.Fatal(err)
	}

	newer := buildUpdateArchive(t, dir, "2026.08.02", key)
	if _, err := installer.InstallFromArchive(newer); err != nil {
		t.Fatal(err)
	}

	older := buildUpdateArchive(t, dir, "2026.08.01", key)
	if _, err := installer.InstallFromArchive(older); err == nil {
		t.Fatal("expected older version to be rejected")
	}
}

func TestInstallFromArchiveRejectsBadSignature(t *testing.T) {
	_, certPEM := generateSigner(t)
	otherKey, _ := generateSigner(t)
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	writeFile(t, certPath, string(certPEM))

	archive := buildUpdateArchive(t, dir, "2026.08.01", otherKey)

	installer, err := NewInstaller(Options{InstallRoot: filepath.Join(dir, "install"), CertPath: certPath})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := installer.InstallFromArchive(archive); err == nil {
		t.Fatal("expected signature verification to fail against mismatched cert")
	}
}

func TestFindArchiveLocatesSingleMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), "irrelevant")
	writeFile(t, filepath.Join(dir, "release.dictupdate.zip"), "zip-bytes")

	found, err := FindArchive(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(found) != "release.dictupdate.zip" {
		t.Errorf("found = %q", found)
	}
}

func TestFindArchiveRejectsMultipleMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.dictupdate.zip"), "1")
	writeFile(t, filepath.Join(dir, "b.dictupdate.zip"), "2")

	if _, err := FindArchive(dir); err == nil {
		t.Fatal("expected error for multiple matching archives")
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"2026.08.02", "2026.08.01", 1},
	}
	for _, c := range cases {
		if got := compareVersions(c.a, c.b); sign(got) != sign(c.want) {
			t.Errorf("compareVersions(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
