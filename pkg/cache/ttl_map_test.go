package cache

import (
	"testing"
	"time"
)

func TestTTLMapExpiry(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Now()

	m.Set("a", 1, now, time.Minute)
	if v, ok := m.Get("a", now.Add(30*time.Second)); !ok || v != 1 {
		t.Fatalf("expected fresh entry, got %d %v", v, ok)
	}
	if _, ok := m.Get("a", now.Add(2*time.Minute)); ok {
		t.Fatal("expected entry to expire")
	}
	if _, ok := m.Get("missing", now); ok {
		t.Fatal("expected miss for absent key")
	}
}
