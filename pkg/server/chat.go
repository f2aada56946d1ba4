package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/msouli/folio/pkg/abuse"
	"github.com/msouli/folio/pkg/quota"
	"github.com/msouli/folio/pkg/upstream"
)

const maxChatBodyBytes = 1 << 16

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one chat turn: origin guard, identity, abuse signal,
// rate limit, budget check, validation, reservation, then the streaming
// relay. Each step's precondition depends on the previous one, so the
// order is fixed.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.applyCORS(w)
	ctx := r.Context()

	if err := abuse.CheckOrigin(r, s.cfg.Security.AllowedOrigin); err != nil {
		s.log.Warn("chat origin rejected", "origin", r.Header.Get("Origin"))
		w.WriteHeader(http.StatusForbidden)
		return
	}

	identity := abuse.ResolveClientIP(r, s.cfg.Security.TrustedProxyCount)
	s.observeUserAgent(r, identity)

	rate, err := s.ledger.ConsumeRateLimit(ctx, identity)
	if err != nil {
		s.log.Error("rate limit check failed", "identity", identity, "err", err)
		writeError(w, http.StatusInternalServerError, "Request failed")
		return
	}
	h := w.Header()
	if !rate.Allowed {
		h.Set("x-ratelimit-limit", strconv.FormatInt(rate.Limit, 10))
		h.Set("x-ratelimit-remaining", strconv.FormatInt(rate.Remaining, 10))
		h.Set("x-ratelimit-reset", strconv.FormatInt(rate.ResetAt.UnixMilli(), 10))
		h.Set("x-captcha-required", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
		return
	}

	tq, err := s.ledger.GetTokenQuota(ctx, identity)
	if err != nil {
		s.log.Error("quota read failed", "identity", identity, "err", err)
		writeError(w, http.StatusInternalServerError, "Request failed")
		return
	}
	if tq.Remaining <= 0 {
		h.Set("x-captcha-required", "1")
		writeError(w, http.StatusTooManyRequests, "Daily token quota exceeded. Please try again tomorrow.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Message too long")
			return
		}
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	if utf8.RuneCountInString(message) > s.cfg.Limits.MaxMessageLength {
		writeError(w, http.StatusRequestEntityTooLarge, "Message too long")
		return
	}

	if s.chat == nil {
		s.log.Error("chat requested but no upstream api key is configured")
		writeError(w, http.StatusInternalServerError, "Request failed")
		return
	}

	// Finer-grained than the coarse remaining check above; can lose the
	// race against concurrent turns from the same identity.
	target := quota.ReservationTarget(message)
	res, ok, err := s.ledger.Reserve(ctx, identity, target)
	if err != nil {
		s.log.Error("reservation failed", "identity", identity, "err", err)
		writeError(w, http.StatusInternalServerError, "Request failed")
		return
	}
	if !ok {
		h.Set("x-captcha-required", "1")
		writeError(w, http.StatusTooManyRequests, "Daily token quota exceeded. Please try again tomorrow.")
		return
	}

	// The upstream stream lives on a detached context: when the client
	// drops we still want to drain its late usage telemetry before
	// cancelling, so the settlement charges what was actually generated.
	upCtx, upCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer upCancel()

	stream, err := s.chat.StreamChat(upCtx, message)
	if err != nil {
		s.settle(res, 0)
		status := upstream.StatusOf(err)
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		s.log.Error("upstream stream open failed", "identity", identity, "status", status, "err", err)
		writeError(w, status, "Request failed")
		return
	}

	sess := &streamSession{
		srv:      s,
		identity: identity,
		res:      res,
		stream:   stream,
		cancel:   upCancel,
	}
	sess.run(w, r)
}

// observeUserAgent logs suspicious client signatures without ever blocking
// the request. Repeated hits from one identity are throttled.
func (s *Server) observeUserAgent(r *http.Request, identity string) {
	sig := abuse.EvaluateUserAgent(r.UserAgent(), s.cfg.Security.AllowlistUASubstrings)
	if !sig.Suspicious {
		return
	}
	now := time.Now()
	key := identity + "|" + sig.Reason + "|" + sig.Matched
	if _, seen := s.uaWarned.Get(key, now); seen {
		return
	}
	s.uaWarned.Set(key, struct{}{}, now, 10*time.Minute)
	s.log.Warn("suspicious client signature",
		"identity", identity, "reason", sig.Reason, "pattern", sig.Matched, "ua", sig.UserAgent)
}

// settle reconciles a reservation on a fresh context: the request context
// is usually already cancelled on the paths that need this most.
func (s *Server) settle(res quota.Reservation, actualUsed int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ledger.Settle(ctx, res, actualUsed); err != nil {
		s.log.Error("settlement failed", "identity", res.Identity, "reserved", res.Amount, "used", actualUsed, "err", err)
	}
}
