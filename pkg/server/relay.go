package server

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/msouli/folio/pkg/abuse"
	"github.com/msouli/folio/pkg/relay"
)

const maxFormBodyBytes = 1 << 15

// consumeFormRate applies the shared per-identity request limit to a form
// endpoint. Returns false after writing the 429.
func (s *Server) consumeFormRate(w http.ResponseWriter, r *http.Request) bool {
	identity := abuse.ResolveClientIP(r, s.cfg.Security.TrustedProxyCount)
	rate, err := s.ledger.ConsumeRateLimit(r.Context(), identity)
	if err != nil {
		s.log.Error("rate limit check failed", "identity", identity, "err", err)
		writeError(w, http.StatusInternalServerError, "Request failed")
		return false
	}
	if !rate.Allowed {
		w.Header().Set("x-captcha-required", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
		return false
	}
	return true
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w)

	if err := abuse.CheckOrigin(r, s.cfg.Security.AllowedOrigin); err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if !s.consumeFormRate(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
	var msg relay.ContactMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	if err := msg.Validate(); err != nil {
		s.log.Debug("contact form rejected", "err", err)
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	if !s.mailer.Configured() {
		s.log.Error("contact form submitted but emailjs credentials are missing")
		writeError(w, http.StatusInternalServerError, "Server misconfigured: missing EmailJS env vars")
		return
	}
	if err := s.mailer.Send(r.Context(), msg); err != nil {
		s.log.Error("contact relay failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to send message. Please try again later.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type newsletterRequest struct {
	Email  string `json:"email"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w)

	if err := abuse.CheckOrigin(r, s.cfg.Security.AllowedOrigin); err != nil {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if !s.consumeFormRate(w, r) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
	var req newsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}
	email := strings.TrimSpace(req.Email)
	if len(email) > 254 {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "website"
	}
	sub := relay.Subscriber{
		Email:  email,
		Source: source,
		IP:     abuse.ResolveClientIP(r, s.cfg.Security.TrustedProxyCount),
	}
	if err := s.subs.Subscribe(r.Context(), sub); err != nil {
		s.log.Error("newsletter signup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "Unexpected error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
