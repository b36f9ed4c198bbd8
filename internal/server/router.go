package server

import "net/http"

// NewRouter wires the admin HTTP surface: the browser WebSocket feed, a
// status endpoint, the signed session manifest, and (when enabled) the
// signed dictionary/rule-pack update endpoint. Raw and JSON fan-out are
// served on their own TCP listeners (ListenRaw, ListenJSON), not over HTTP.
func NewRouter(s *Server) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/manifest", s.handleManifest)
	if s.enableAdmin {
		mux.HandleFunc("/admin/update", s.handleAdminUpdate)
	}
	return mux, nil
}
