package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend for development and tests. It
// mirrors the Redis backend's semantics under a single mutex; it is not
// meant for multi-instance deployments.
type MemoryBackend struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	windows  map[string][]time.Time
	now      func() time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		counters: make(map[string]*memoryCounter),
		windows:  make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (b *MemoryBackend) ConsumeRate(_ context.Context, key string, limit int64, window time.Duration) (RateResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-window)
	kept := b.windows[key][:0]
	for _, ts := range b.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	res := RateResult{Limit: limit, ResetAt: now.Add(window)}
	if len(kept) > 0 {
		res.ResetAt = kept[0].Add(window)
	}
	if int64(len(kept)) < limit {
		res.Allowed = true
		kept = append(kept, now)
	}
	b.windows[key] = kept
	res.Remaining = limit - int64(len(kept))
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res, nil
}

func (b *MemoryBackend) ReadCounters(_ context.Context, committedKey, reservedKey string) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valueLocked(committedKey), b.valueLocked(reservedKey), nil
}

func (b *MemoryBackend) Reserve(_ context.Context, committedKey, reservedKey string, amount, limit int64, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	committed := b.valueLocked(committedKey)
	reserved := b.valueLocked(reservedKey)
	if committed < 0 {
		committed = 0
	}
	if reserved < 0 {
		reserved = 0
	}
	if committed+reserved+amount > limit {
		return false, nil
	}
	b.addLocked(reservedKey, amount, ttl)
	return true, nil
}

func (b *MemoryBackend) Settle(_ context.Context, committedKey, reservedKey string, reservedAmount, actualUsed int64, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reservedAmount > 0 {
		after := b.addLocked(reservedKey, -reservedAmount, ttl)
		if after < 0 {
			b.setLocked(reservedKey, 0, ttl)
		}
	}
	if actualUsed > 0 {
		b.addLocked(committedKey, actualUsed, ttl)
	}
	return nil
}

func (b *MemoryBackend) valueLocked(key string) int64 {
	c, ok := b.counters[key]
	if !ok {
		return 0
	}
	if !c.expiresAt.IsZero() && !b.now().Before(c.expiresAt) {
		delete(b.counters, key)
		return 0
	}
	return c.value
}

func (b *MemoryBackend) addLocked(key string, delta int64, ttl time.Duration) int64 {
	value := b.valueLocked(key) + delta
	b.setLocked(key, value, ttl)
	return value
}

func (b *MemoryBackend) setLocked(key string, value int64, ttl time.Duration) {
	b.counters[key] = &memoryCounter{value: value, expiresAt: b.now().Add(ttl)}
}
