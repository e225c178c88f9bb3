package economy

import (
	"testing"
	"time"
)

func TestIntervalGateAllow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewIntervalGate(10 * time.Second)
	g.now = func() time.Time { return now }

	if !g.Allow("like|alice") {
		t.Fatalf("first action should pass")
	}
	if g.Allow("like|alice") {
		t.Fatalf("immediate repeat should be throttled")
	}
	if !g.Allow("like|bob") {
		t.Fatalf("other keys are independent")
	}

	now = now.Add(9 * time.Second)
	if g.Allow("like|alice") {
		t.Fatalf("action inside the interval should be throttled")
	}
	now = now.Add(time.Second)
	if !g.Allow("like|alice") {
		t.Fatalf("action after the interval should pass")
	}
}

func TestConfirmBoxTake(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewConfirmBox(time.Minute)
	b.now = func() time.Time { return now }

	id, expiresAt := b.Put("event-1", "alice", 300)
	if !expiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expiry = %v, want now+ttl", expiresAt)
	}

	p, ok := b.Take(id)
	if !ok {
		t.Fatalf("fresh quote should be takeable")
	}
	if p.eventID != "event-1" || p.userID != "alice" || p.cost != 300 {
		t.Fatalf("quote contents wrong: %+v", p)
	}

	if _, ok := b.Take(id); ok {
		t.Fatalf("a quote can only be taken once")
	}
}

func TestConfirmBoxExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewConfirmBox(time.Minute)
	b.now = func() time.Time { return now }

	id, _ := b.Put("event-1", "alice", 300)
	now = now.Add(time.Minute + time.Second)
	if _, ok := b.Take(id); ok {
		t.Fatalf("expired quote must not be takeable")
	}
}

func TestConfirmBoxUnknownQuote(t *testing.T) {
	b := NewConfirmBox(time.Minute)
	if _, ok := b.Take("nope"); ok {
		t.Fatalf("unknown quote must not be takeable")
	}
}
