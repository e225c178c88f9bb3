package economy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Finalizer is the slice of the ledger a trade session composes: live
// ownership checks while offers are built, and the atomic transfer at the
// end.
type Finalizer interface {
	UnlockedCount(ctx context.Context, userID, name, rarity string) (int64, error)
	Transfer(ctx context.Context, legs []TransferLeg) ([]Shortfall, error)
}

type tradeState int

const (
	tradeOpen tradeState = iota
	tradeFinalizing
	tradeClosed
)

func (st tradeState) String() string {
	switch st {
	case tradeOpen:
		return "open"
	case tradeFinalizing:
		return "finalizing"
	default:
		return "closed"
	}
}

// TradeSession is ephemeral negotiation state. It never touches the ledger
// until both parties accept; a timeout or reject discards it with no
// inventory effect.
type TradeSession struct {
	id       string
	fromID   string
	toID     string
	offers   map[string][]CardAmount
	accepted map[string]bool
	state    tradeState
	timer    *time.Timer
}

func (t *TradeSession) view() TradeView {
	offers := make(map[string][]CardAmount, len(t.offers))
	for uid, items := range t.offers {
		offers[uid] = append([]CardAmount(nil), items...)
	}
	accepted := map[string]bool{t.fromID: t.accepted[t.fromID], t.toID: t.accepted[t.toID]}
	return TradeView{
		SessionID: t.id,
		FromID:    t.fromID,
		ToID:      t.toID,
		Offers:    offers,
		Accepted:  accepted,
		State:     t.state.String(),
	}
}

func (t *TradeSession) participant(userID string) bool {
	return userID == t.fromID || userID == t.toID
}

func (t *TradeSession) offeredCount(userID, name, rarity string) int64 {
	var n int64
	for _, item := range t.offers[userID] {
		if item.Name == name && item.Rarity == rarity {
			n += item.Count
		}
	}
	return n
}

// TradeBook holds the open sessions for a single-process deployment.
type TradeBook struct {
	mu       sync.Mutex
	sessions map[string]*TradeSession
	ledger   Finalizer
	timeout  time.Duration
}

func NewTradeBook(ledger Finalizer, timeout time.Duration) *TradeBook {
	return &TradeBook{
		sessions: make(map[string]*TradeSession),
		ledger:   ledger,
		timeout:  timeout,
	}
}

func (b *TradeBook) Start(fromID, toID string) TradeView {
	t := &TradeSession{
		id:       uuid.NewString(),
		fromID:   fromID,
		toID:     toID,
		offers:   make(map[string][]CardAmount),
		accepted: make(map[string]bool),
		state:    tradeOpen,
	}
	b.mu.Lock()
	b.sessions[t.id] = t
	if b.timeout > 0 {
		id := t.id
		t.timer = time.AfterFunc(b.timeout, func() { b.expire(id) })
	}
	view := t.view()
	b.mu.Unlock()
	return view
}

// AddOffer appends or merges an item into the adder's offer. It validates
// the adder currently owns at least already-offered+qty unlocked copies,
// resets both accept flags, and resets the inactivity timeout.
func (b *TradeBook) AddOffer(ctx context.Context, sessionID, userID string, item CardAmount) (TradeView, error) {
	b.mu.Lock()
	t, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return TradeView{}, ErrTradeNotFound
	}
	if t.state != tradeOpen {
		b.mu.Unlock()
		return TradeView{}, ErrTradeClosed
	}
	if !t.participant(userID) {
		b.mu.Unlock()
		return TradeView{}, ErrNotParticipant
	}
	already := t.offeredCount(userID, item.Name, item.Rarity)
	b.mu.Unlock()

	held, err := b.ledger.UnlockedCount(ctx, userID, item.Name, item.Rarity)
	if err != nil {
		return TradeView{}, err
	}
	if held < already+item.Count {
		return TradeView{}, ErrInsufficientQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok = b.sessions[sessionID]
	if !ok || t.state != tradeOpen {
		return TradeView{}, ErrTradeNotFound
	}
	merged := false
	for i, existing := range t.offers[userID] {
		if existing.Name == item.Name && existing.Rarity == item.Rarity {
			t.offers[userID][i].Count += item.Count
			merged = true
			break
		}
	}
	if !merged {
		t.offers[userID] = append(t.offers[userID], item)
	}
	t.accepted[t.fromID] = false
	t.accepted[t.toID] = false
	if t.timer != nil {
		t.timer.Reset(b.timeout)
	}
	return t.view(), nil
}

// Accept sets the caller's flag. When both flags are set the session
// transitions to finalizing exactly once; the losing side of a near-
// simultaneous double accept observes the state change and backs off.
func (b *TradeBook) Accept(ctx context.Context, sessionID, userID string) (TradeOutcome, error) {
	b.mu.Lock()
	t, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return TradeOutcome{}, ErrTradeNotFound
	}
	if !t.participant(userID) {
		b.mu.Unlock()
		return TradeOutcome{}, ErrNotParticipant
	}
	if t.state != tradeOpen {
		b.mu.Unlock()
		return TradeOutcome{}, ErrTradeClosed
	}
	t.accepted[userID] = true
	if !t.accepted[t.fromID] || !t.accepted[t.toID] {
		b.mu.Unlock()
		return TradeOutcome{}, nil
	}
	t.state = tradeFinalizing
	if t.timer != nil {
		t.timer.Stop()
	}
	legs := []TransferLeg{
		{FromUserID: t.fromID, ToUserID: t.toID, Items: append([]CardAmount(nil), t.offers[t.fromID]...)},
		{FromUserID: t.toID, ToUserID: t.fromID, Items: append([]CardAmount(nil), t.offers[t.toID]...)},
	}
	b.mu.Unlock()

	shortfalls, err := b.ledger.Transfer(ctx, legs)
	b.mu.Lock()
	t.state = tradeClosed
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	if len(shortfalls) > 0 {
		return TradeOutcome{Shortfalls: shortfalls}, nil
	}
	if err != nil {
		return TradeOutcome{}, err
	}
	return TradeOutcome{Finalized: true}, nil
}

func (b *TradeBook) Reject(sessionID, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.sessions[sessionID]
	if !ok {
		return ErrTradeNotFound
	}
	if !t.participant(userID) {
		return ErrNotParticipant
	}
	if t.state == tradeFinalizing {
		return ErrTradeClosed
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.state = tradeClosed
	delete(b.sessions, sessionID)
	return nil
}

func (b *TradeBook) View(sessionID string) (TradeView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.sessions[sessionID]
	if !ok {
		return TradeView{}, ErrTradeNotFound
	}
	return t.view(), nil
}

func (b *TradeBook) expire(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.sessions[sessionID]
	if !ok || t.state != tradeOpen {
		return
	}
	t.state = tradeClosed
	delete(b.sessions, sessionID)
}

// Service wrappers exposed to the presentation layer.

func (s *Service) StartTrade(fromID, toID string) TradeView {
	return s.trades.Start(fromID, toID)
}

func (s *Service) AddOffer(ctx context.Context, sessionID, userID string, item CardAmount) (TradeView, error) {
	return s.trades.AddOffer(ctx, sessionID, userID, item)
}

func (s *Service) AcceptTrade(ctx context.Context, sessionID, userID string) (TradeOutcome, error) {
	return s.trades.Accept(ctx, sessionID, userID)
}

func (s *Service) RejectTrade(sessionID, userID string) error {
	return s.trades.Reject(sessionID, userID)
}

func (s *Service) TradeState(sessionID string) (TradeView, error) {
	return s.trades.View(sessionID)
}
