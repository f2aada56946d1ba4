package abuse

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrOriginNotAllowed marks a cross-origin request that must be rejected
// with 403. The route boundary maps it to a bodyless response so the policy
// itself is not leaked.
var ErrOriginNotAllowed = errors.New("origin not allowed")

// CheckOrigin rejects a request iff an allowed origin is configured, the
// request carries an Origin header and the header does not match exactly.
// Same-origin navigations and non-browser tools often omit the header, so
// its absence passes.
func CheckOrigin(r *http.Request, allowedOrigin string) error {
	allowed := strings.TrimSpace(allowedOrigin)
	if allowed == "" {
		return nil
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	if origin != allowed {
		return fmt.Errorf("%w: %s", ErrOriginNotAllowed, origin)
	}
	return nil
}
