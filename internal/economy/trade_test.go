package economy

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeLedger implements Finalizer against an in-memory holdings map.
type fakeLedger struct {
	mu        sync.Mutex
	holdings  map[string]int64 // "user|name|rarity" -> unlocked count
	transfers [][]TransferLeg
	shortfall []Shortfall
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{holdings: make(map[string]int64)}
}

func (f *fakeLedger) set(userID, name, rarity string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdings[userID+"|"+name+"|"+rarity] = n
}

func (f *fakeLedger) UnlockedCount(_ context.Context, userID, name, rarity string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdings[userID+"|"+name+"|"+rarity], nil
}

func (f *fakeLedger) Transfer(_ context.Context, legs []TransferLeg) ([]Shortfall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, legs)
	return f.shortfall, nil
}

func (f *fakeLedger) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func card(name, rarity string, count int64) CardAmount {
	return CardAmount{CardRef: CardRef{Name: name, Rarity: rarity}, Count: count}
}

func TestTradeHappyPath(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("alice", "Hoshino Suisei 001", "C", 3)
	ledger.set("bob", "Hikari Debut", "R", 1)
	book := NewTradeBook(ledger, time.Minute)
	ctx := context.Background()

	view := book.Start("alice", "bob")
	if view.State != "open" {
		t.Fatalf("new trade state = %q", view.State)
	}

	if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Hoshino Suisei 001", "C", 2)); err != nil {
		t.Fatalf("alice offer: %v", err)
	}
	if _, err := book.AddOffer(ctx, view.SessionID, "bob", card("Hikari Debut", "R", 1)); err != nil {
		t.Fatalf("bob offer: %v", err)
	}

	out, err := book.Accept(ctx, view.SessionID, "alice")
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if out.Finalized {
		t.Fatalf("trade must not finalize on a single accept")
	}

	out, err = book.Accept(ctx, view.SessionID, "bob")
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !out.Finalized {
		t.Fatalf("trade should finalize after both accept")
	}
	if got := ledger.transferCount(); got != 1 {
		t.Fatalf("transfer called %d times, want 1", got)
	}

	legs := ledger.transfers[0]
	if len(legs) != 2 {
		t.Fatalf("want 2 legs, got %d", len(legs))
	}
	if legs[0].FromUserID != "alice" || legs[0].ToUserID != "bob" || legs[0].Items[0].Count != 2 {
		t.Fatalf("unexpected first leg: %+v", legs[0])
	}

	if _, err := book.View(view.SessionID); err != ErrTradeNotFound {
		t.Fatalf("finalized session should be gone, got %v", err)
	}
}

func TestTradeOfferExceedsUnlockedHoldings(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("alice", "Glow Stick", "C", 1)
	book := NewTradeBook(ledger, time.Minute)
	ctx := context.Background()

	view := book.Start("alice", "bob")
	if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Glow Stick", "C", 2)); err != ErrInsufficientQuantity {
		t.Fatalf("got %v, want ErrInsufficientQuantity", err)
	}

	// The cumulative offered amount counts, not just the single add.
	if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Glow Stick", "C", 1)); err != nil {
		t.Fatalf("first copy should be offerable: %v", err)
	}
	if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Glow Stick", "C", 1)); err != ErrInsufficientQuantity {
		t.Fatalf("second copy exceeds holdings, got %v", err)
	}
}

func TestTradeAddOfferResetsAccepts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("alice", "Glow Stick", "C", 5)
	ledger.set("bob", "Glow Stick", "C", 5)
	book := NewTradeBook(ledger, time.Minute)
	ctx := context.Background()

	view := book.Start("alice", "bob")
	if _, err := book.Accept(ctx, view.SessionID, "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	updated, err := book.AddOffer(ctx, view.SessionID, "bob", card("Glow Stick", "C", 1))
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if updated.Accepted["alice"] || updated.Accepted["bob"] {
		t.Fatalf("offer change must clear both accept flags: %+v", updated.Accepted)
	}

	// Alice's earlier accept no longer counts toward finalization.
	out, err := book.Accept(ctx, view.SessionID, "bob")
	if err != nil {
		t.Fatalf("accept after change: %v", err)
	}
	if out.Finalized {
		t.Fatalf("trade finalized with a stale accept")
	}
	if ledger.transferCount() != 0 {
		t.Fatalf("no transfer should have run")
	}
}

func TestTradeShortfallAborts(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("alice", "Glow Stick", "C", 2)
	ledger.shortfall = []Shortfall{{
		UserID:  "alice",
		CardRef: CardRef{Name: "Glow Stick", Rarity: "C"},
		Wanted:  2,
		Held:    1,
	}}
	book := NewTradeBook(ledger, time.Minute)
	ctx := context.Background()

	view := book.Start("alice", "bob")
	if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Glow Stick", "C", 2)); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := book.Accept(ctx, view.SessionID, "alice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	out, err := book.Accept(ctx, view.SessionID, "bob")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if out.Finalized {
		t.Fatalf("shortfall must not finalize")
	}
	if len(out.Shortfalls) != 1 || out.Shortfalls[0].UserID != "alice" {
		t.Fatalf("shortfalls not reported: %+v", out.Shortfalls)
	}
	if _, err := book.View(view.SessionID); err != ErrTradeNotFound {
		t.Fatalf("aborted session should be discarded, got %v", err)
	}
}

func TestTradeReject(t *testing.T) {
	ledger := newFakeLedger()
	book := NewTradeBook(ledger, time.Minute)

	view := book.Start("alice", "bob")
	if err := book.Reject(view.SessionID, "mallory"); err != ErrNotParticipant {
		t.Fatalf("outsider reject got %v", err)
	}
	if err := book.Reject(view.SessionID, "bob"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := book.View(view.SessionID); err != ErrTradeNotFound {
		t.Fatalf("rejected session should be gone, got %v", err)
	}
	if ledger.transferCount() != 0 {
		t.Fatalf("reject must not touch the ledger")
	}
}

func TestTradeTimeoutDiscardsSession(t *testing.T) {
	ledger := newFakeLedger()
	book := NewTradeBook(ledger, 10*time.Millisecond)

	view := book.Start("alice", "bob")
	deadline := time.Now().Add(time.Second)
	for {
		if _, err := book.View(view.SessionID); err == ErrTradeNotFound {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if ledger.transferCount() != 0 {
		t.Fatalf("expiry must not touch the ledger")
	}
}

func TestTradeOfferTimeoutResets(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("alice", "Glow Stick", "C", 5)
	book := NewTradeBook(ledger, 60*time.Millisecond)
	ctx := context.Background()

	view := book.Start("alice", "bob")
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		if _, err := book.AddOffer(ctx, view.SessionID, "alice", card("Glow Stick", "C", 1)); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
	}
	// 120ms elapsed, well past the timeout, but activity kept it alive.
	if _, err := book.View(view.SessionID); err != nil {
		t.Fatalf("active session expired: %v", err)
	}
}

func TestTradeUnknownSessionAndOutsider(t *testing.T) {
	ledger := newFakeLedger()
	ledger.set("mallory", "Glow Stick", "C", 5)
	book := NewTradeBook(ledger, time.Minute)
	ctx := context.Background()

	if _, err := book.AddOffer(ctx, "nope", "alice", card("Glow Stick", "C", 1)); err != ErrTradeNotFound {
		t.Fatalf("got %v, want ErrTradeNotFound", err)
	}
	if _, err := book.Accept(ctx, "nope", "alice"); err != ErrTradeNotFound {
		t.Fatalf("got %v, want ErrTradeNotFound", err)
	}

	view := book.Start("alice", "bob")
	if _, err := book.AddOffer(ctx, view.SessionID, "mallory", card("Glow Stick", "C", 1)); err != ErrNotParticipant {
		t.Fatalf("outsider offer got %v", err)
	}
	if _, err := book.Accept(ctx, view.SessionID, "mallory"); err != ErrNotParticipant {
		t.Fatalf("outsider accept got %v", err)
	}
}
