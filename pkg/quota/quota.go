// Package quota tracks per-caller request rates and daily token budgets.
//
// Tokens are reserved pessimistically before the upstream cost is known and
// reconciled at settlement, so the worst-case exposure per request is
// bounded. Counters live in an external atomic store (Redis in production,
// an in-process map for development and tests); all mutation goes through
// atomic backend operations, never read-modify-write in application code.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// rateWindow is the sliding window for the per-caller request limit.
	rateWindow = time.Minute

	// counterTTL bounds storage growth: daily counters are meaningless a
	// couple of days later, so they expire on their own. An unsettled
	// reservation (process crash) self-heals through this expiry.
	counterTTL = 48 * time.Hour
)

// RateResult is the outcome of consuming one request from a caller's
// sliding rate-limit window.
type RateResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// TokenQuota is a point-in-time view of a caller's daily token budget.
type TokenQuota struct {
	Committed int64
	Reserved  int64
	Limit     int64
	Remaining int64
}

// Reservation is a provisional hold on token budget. It is settled exactly
// once by the caller; the ledger itself does not deduplicate.
type Reservation struct {
	ID       string
	Identity string
	Amount   int64
}

// Backend provides the atomic counter operations the ledger is built on.
type Backend interface {
	// ConsumeRate counts one request against key's sliding window.
	ConsumeRate(ctx context.Context, key string, limit int64, window time.Duration) (RateResult, error)
	// ReadCounters returns the committed and reserved counters, 0 when absent.
	ReadCounters(ctx context.Context, committedKey, reservedKey string) (committed, reserved int64, err error)
	// Reserve atomically adds amount to reservedKey iff
	// committed+reserved+amount stays within limit, refreshing its expiry.
	Reserve(ctx context.Context, committedKey, reservedKey string, amount, limit int64, ttl time.Duration) (bool, error)
	// Settle atomically decrements reservedKey by reservedAmount (floored at
	// zero) and increments committedKey by actualUsed when positive. Both
	// touched counters get their expiry refreshed.
	Settle(ctx context.Context, committedKey, reservedKey string, reservedAmount, actualUsed int64, ttl time.Duration) error
}

// Ledger exposes the four quota operations over a Backend.
type Ledger struct {
	backend           Backend
	requestsPerMinute int64
	tokensPerDay      int64
	now               func() time.Time
}

func NewLedger(backend Backend, requestsPerMinute int, tokensPerDay int64) *Ledger {
	return &Ledger{
		backend:           backend,
		requestsPerMinute: int64(requestsPerMinute),
		tokensPerDay:      tokensPerDay,
		now:               time.Now,
	}
}

// ConsumeRateLimit counts one request from identity against the per-minute
// sliding window.
func (l *Ledger) ConsumeRateLimit(ctx context.Context, identity string) (RateResult, error) {
	return l.backend.ConsumeRate(ctx, "rl:req:"+identity, l.requestsPerMinute, rateWindow)
}

// GetTokenQuota reads the caller's budget for the current UTC day. Negative
// stored values are treated as zero.
func (l *Ledger) GetTokenQuota(ctx context.Context, identity string) (TokenQuota, error) {
	committed, reserved, err := l.backend.ReadCounters(ctx, l.committedKey(identity), l.reservedKey(identity))
	if err != nil {
		return TokenQuota{}, fmt.Errorf("quota: read counters: %w", err)
	}
	if committed < 0 {
		committed = 0
	}
	if reserved < 0 {
		reserved = 0
	}
	remaining := l.tokensPerDay - committed - reserved
	if remaining < 0 {
		remaining = 0
	}
	return TokenQuota{
		Committed: committed,
		Reserved:  reserved,
		Limit:     l.tokensPerDay,
		Remaining: remaining,
	}, nil
}

// Reserve places a provisional hold of amount tokens for identity. A zero
// amount trivially succeeds without touching storage. A false result means
// the remaining budget was insufficient; storage is left unchanged.
func (l *Ledger) Reserve(ctx context.Context, identity string, amount int64) (Reservation, bool, error) {
	if amount <= 0 {
		return Reservation{ID: uuid.NewString(), Identity: identity}, true, nil
	}
	ok, err := l.backend.Reserve(ctx, l.committedKey(identity), l.reservedKey(identity), amount, l.tokensPerDay, counterTTL)
	if err != nil {
		return Reservation{}, false, fmt.Errorf("quota: reserve: %w", err)
	}
	if !ok {
		return Reservation{}, false, nil
	}
	return Reservation{ID: uuid.NewString(), Identity: identity, Amount: amount}, true, nil
}

// Settle releases the reservation and commits the actual usage. Safe with
// actualUsed == 0 (pure release). Committed may exceed the daily limit here
// when actual usage outran the pessimistic reservation; that overshoot is
// tolerated and never rolled back.
func (l *Ledger) Settle(ctx context.Context, res Reservation, actualUsed int64) error {
	if actualUsed < 0 {
		actualUsed = 0
	}
	if res.Amount <= 0 && actualUsed <= 0 {
		return nil
	}
	err := l.backend.Settle(ctx, l.committedKey(res.Identity), l.reservedKey(res.Identity), res.Amount, actualUsed, counterTTL)
	if err != nil {
		return fmt.Errorf("quota: settle: %w", err)
	}
	return nil
}

func (l *Ledger) committedKey(identity string) string {
	return "quota:tokens:" + identity + ":" + l.day()
}

func (l *Ledger) reservedKey(identity string) string {
	return "quota:tokens_reserved:" + identity + ":" + l.day()
}

func (l *Ledger) day() string {
	return l.now().UTC().Format("2006-01-02")
}
