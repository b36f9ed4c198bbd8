package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/uatdecode/uatd/internal/crypto"
	"github.com/uatdecode/uatd/internal/manifest"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleStatus reports current fan-out subscriber counts for monitoring.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"subscribers": s.dispatcher.SubscriberCount(),
		"storageDir":  s.storageDir,
	})
}

type manifestResponse struct {
	Manifest  manifest.Manifest `json:"manifest"`
	Signature *crypto.JWS       `json:"signature,omitempty"`
}

// handleManifest builds a SHA-256 manifest of every file under the session
// storage directory and, if signing material is configured, attaches a
// detached JWS signature so a client can verify a session's capture and
// report artifacts came from this daemon unmodified.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	var paths []string
	err := filepath.Walk(s.storageDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	mani, err := manifest.Build(paths)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := manifestResponse{Manifest: mani}
	if s.manifestSigning.PrivateKeyPath != "" {
		body, err := json.Marshal(mani)
		if err == nil {
			if key, kerr := os.ReadFile(s.manifestSigning.PrivateKeyPath); kerr == nil {
				if jws, serr := crypto.SignDetachedJWS(body, key); serr == nil {
					resp.Signature = &jws
				}
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAdminUpdate installs a signed dictionary/rule-pack archive posted
// as the raw request body.
func (s *Server) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tmp, err := os.CreateTemp(s.storageDir, "upload-*.dictupdate.zip")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r.Body); err != nil {
		tmp.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tmp.Close(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	result, err := s.updateInstaller.InstallFromArchive(tmp.Name())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
