package quota

import (
	"strings"
	"unicode/utf8"
)

// Reservation sizing: the estimate plus a safety margin, clamped into a
// bounded range so one request can never hold more than ReserveCeiling
// tokens and short prompts still cover a typical completion.
const (
	ReserveFloor   = 250
	ReserveCeiling = 2000
	ReserveMargin  = 250
)

// EstimateTokens is a cheap deterministic heuristic: roughly one token per
// four characters of trimmed text, rounded up. Whitespace-only text costs
// nothing.
func EstimateTokens(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	runes := utf8.RuneCountInString(text)
	return int64((runes + 3) / 4)
}

// ReservationTarget sizes the pessimistic hold placed before the true cost
// is known.
func ReservationTarget(text string) int64 {
	target := EstimateTokens(text) + ReserveMargin
	if target < ReserveFloor {
		target = ReserveFloor
	}
	if target > ReserveCeiling {
		target = ReserveCeiling
	}
	return target
}
