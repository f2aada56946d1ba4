package server

import (
	"encoding/json"
	"net/http"

	"github.com/msouli/folio/pkg/abuse"
)

func (s *Server) corsOrigin() string {
	if o := s.cfg.Security.AllowedOrigin; o != "" {
		return o
	}
	return "*"
}

func (s *Server) applyCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", s.corsOrigin())
	h.Add("Vary", "Origin")
}

// handlePreflight answers CORS preflights for the /api endpoints. The
// origin guard applies here too: a disallowed origin gets the guard's 403,
// CORS headers included, instead of a permissive 204.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w)
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if err := abuse.CheckOrigin(r, s.cfg.Security.AllowedOrigin); err != nil {
		s.log.Warn("preflight origin rejected", "origin", r.Header.Get("Origin"))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError emits the generic client-facing error shape. Messages are
// fixed strings and never echo request content.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
