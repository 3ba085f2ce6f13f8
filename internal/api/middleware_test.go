package api

import (
	"testing"
	"time"
)

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func TestClientLimiterForgetsIdleClients(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }

	if !l.allow("10.0.0.1") {
		t.Fatal("first request should pass")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("second request in the same instant should be limited")
	}
	l.allow("10.0.0.2")
	if n := l.size(); n != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", n)
	}

	now = now.Add(limiterIdleTTL / 2)
	l.allow("10.0.0.2")
	if n := l.size(); n != 2 {
		t.Fatalf("no sweep before ttl, got %d clients", n)
	}

	now = now.Add(limiterIdleTTL/2 + time.Second)
	l.allow("10.0.0.3")
	// .1 idle past ttl; .2 was seen half a ttl ago
	if n := l.size(); n != 2 {
		t.Fatalf("expected idle client swept, got %d clients", n)
	}
	if !l.allow("10.0.0.1") {
		t.Fatal("a swept client starts with a full bucket")
	}
}
