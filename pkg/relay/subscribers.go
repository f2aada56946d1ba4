package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Subscriber is one newsletter signup. Email is the identity; repeated
// signups merge into the existing record.
type Subscriber struct {
	Email  string
	Source string
	IP     string
}

type SubscriberStore interface {
	Subscribe(ctx context.Context, sub Subscriber) error
}

// RedisSubscriberStore keeps subscribers in the same Redis the quota ledger
// uses: a hash per subscriber plus a set for listing.
type RedisSubscriberStore struct {
	client goredis.Cmdable
}

func NewRedisSubscriberStore(client goredis.Cmdable) *RedisSubscriberStore {
	return &RedisSubscriberStore{client: client}
}

func (s *RedisSubscriberStore) Subscribe(ctx context.Context, sub Subscriber) error {
	email := strings.ToLower(strings.TrimSpace(sub.Email))
	key := "newsletter:sub:" + email

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "email", email, "source", sub.Source, "ip", sub.IP)
	pipe.HSetNX(ctx, key, "created_at", time.Now().UTC().Format(time.RFC3339))
	pipe.SAdd(ctx, "newsletter:subscribers", email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", email, err)
	}
	return nil
}

// MemorySubscriberStore backs development and tests.
type MemorySubscriberStore struct {
	mu   sync.Mutex
	subs map[string]Subscriber
}

func NewMemorySubscriberStore() *MemorySubscriberStore {
	return &MemorySubscriberStore{subs: make(map[string]Subscriber)}
}

func (s *MemorySubscriberStore) Subscribe(_ context.Context, sub Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Email = strings.ToLower(strings.TrimSpace(sub.Email))
	s.subs[sub.Email] = sub
	return nil
}

// Subscribed reports whether an email is stored, for tests.
func (s *MemorySubscriberStore) Subscribed(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
