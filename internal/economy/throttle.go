package economy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IntervalGate enforces a per-key minimum interval. Entries are pruned as
// they age out, keeping the map bounded for a single-process deployment.
type IntervalGate struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewIntervalGate(interval time.Duration) *IntervalGate {
	return &IntervalGate{
		last:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether the key may act now and records the action if so.
func (g *IntervalGate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if t, ok := g.last[key]; ok && now.Sub(t) < g.interval {
		return false
	}
	g.last[key] = now
	if len(g.last)%256 == 0 {
		g.prune(now)
	}
	return true
}

func (g *IntervalGate) prune(now time.Time) {
	for k, t := range g.last {
		if now.Sub(t) >= g.interval {
			delete(g.last, k)
		}
	}
}

type pendingConfirm struct {
	eventID   string
	userID    string
	cost      int64
	expiresAt time.Time
}

// ConfirmBox holds quoted superchat costs awaiting confirmation. A quote
// that expires is simply forgotten; no ledger call has happened yet.
type ConfirmBox struct {
	mu      sync.Mutex
	pending map[string]pendingConfirm
	ttl     time.Duration
	now     func() time.Time
}

func NewConfirmBox(ttl time.Duration) *ConfirmBox {
	return &ConfirmBox{
		pending: make(map[string]pendingConfirm),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (b *ConfirmBox) Put(eventID, userID string, cost int64) (quoteID string, expiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	quoteID = uuid.NewString()
	expiresAt = now.Add(b.ttl)
	b.pending[quoteID] = pendingConfirm{eventID: eventID, userID: userID, cost: cost, expiresAt: expiresAt}
	if len(b.pending)%256 == 0 {
		for id, p := range b.pending {
			if !p.expiresAt.After(now) {
				delete(b.pending, id)
			}
		}
	}
	return quoteID, expiresAt
}

// Take removes and returns the quote. Expired or unknown quotes report ok
// false.
func (b *ConfirmBox) Take(quoteID string) (pendingConfirm, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[quoteID]
	if !ok {
		return pendingConfirm{}, false
	}
	delete(b.pending, quoteID)
	if !p.expiresAt.After(b.now()) {
		return pendingConfirm{}, false
	}
	return p, true
}
