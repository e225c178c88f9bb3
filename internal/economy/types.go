package economy

import "time"

// CardRef identifies a card stack by its (name, rarity) key.
type CardRef struct {
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
}

type CardAmount struct {
	CardRef
	Count int64 `json:"count"`
}

type StackView struct {
	Name            string    `json:"name"`
	Rarity          string    `json:"rarity"`
	Count           int64     `json:"count"`
	Locked          bool      `json:"locked"`
	FirstAcquiredAt time.Time `json:"first_acquired_at"`
}

type InventoryView struct {
	UserID  string      `json:"user_id"`
	Balance int64       `json:"balance"`
	Stacks  []StackView `json:"stacks"`
}

// TransferLeg moves items from one user to another. A Transfer may carry
// legs in both directions; all of them commit or none do.
type TransferLeg struct {
	FromUserID string       `json:"from_user_id"`
	ToUserID   string       `json:"to_user_id"`
	Items      []CardAmount `json:"items"`
}

// Shortfall itemizes a re-validation failure: the user was short of an
// offered card at commit time.
type Shortfall struct {
	UserID string `json:"user_id"`
	CardRef
	Wanted int64 `json:"wanted"`
	Held   int64 `json:"held"`
}

type DrawInput struct {
	UserID         string
	Subject        string
	SlotName       string
	IdempotencyKey string
}

type DrawResult struct {
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
}

type TradeView struct {
	SessionID string                  `json:"session_id"`
	FromID    string                  `json:"from_id"`
	ToID      string                  `json:"to_id"`
	Offers    map[string][]CardAmount `json:"offers"`
	Accepted  map[string]bool         `json:"accepted"`
	State     string                  `json:"state"`
}

type TradeOutcome struct {
	Finalized  bool        `json:"finalized"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

type WantedType string

const (
	WantedSpecific  WantedType = "specific"
	WantedAnyRarity WantedType = "any_rarity"
	WantedAnyName   WantedType = "any_name"
)

type WantedEntry struct {
	Type   WantedType `json:"type"`
	Name   string     `json:"name,omitempty"`
	Rarity string     `json:"rarity,omitempty"`
}

type ListingView struct {
	ListingID string        `json:"listing_id"`
	OwnerID   string        `json:"owner_id"`
	Offering  []CardAmount  `json:"offering"`
	Wanted    []WantedEntry `json:"wanted"`
	Status    string        `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type ListingSettleResult struct {
	ListingID string       `json:"listing_id"`
	Received  []CardAmount `json:"received"`
	Paid      []CardRef    `json:"paid"`
}

type AttemptView struct {
	ID        string     `json:"id"`
	CardName  string     `json:"card_name"`
	Rarity    string     `json:"rarity"`
	Stage     int        `json:"stage"`
	StartedAt time.Time  `json:"started_at"`
	ReadyAt   time.Time  `json:"ready_at"`
	Resolved  bool       `json:"resolved"`
	Success   *bool      `json:"success,omitempty"`
}

type StartAttemptResult struct {
	Attempt AttemptView `json:"attempt"`
	// BusyUntil is set instead of Attempt when the stage is occupied.
	BusyUntil *time.Time `json:"busy_until,omitempty"`
}

type ResolvedAttempt struct {
	ID       string   `json:"id"`
	CardName string   `json:"card_name"`
	Rarity   string   `json:"rarity"`
	Success  bool     `json:"success"`
	Bonus    *CardRef `json:"bonus,omitempty"`
}

type ClaimResult struct {
	Resolved []ResolvedAttempt `json:"resolved"`
	Skipped  int               `json:"skipped"`
}

type EventView struct {
	EventID     string    `json:"event_id"`
	SubjectID   string    `json:"subject_id"`
	SpawnAt     time.Time `json:"spawn_at"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	PointsTotal int64     `json:"points_total"`
	MoraleScore int64     `json:"morale_score"`
}

type StandingRow struct {
	UserID              string    `json:"user_id"`
	Points              int64     `json:"points"`
	Likes               int64     `json:"likes"`
	Subscribes          int64     `json:"subscribes"`
	Superchats          int64     `json:"superchats"`
	FirstContributionAt time.Time `json:"first_contribution_at"`
}

type SuperchatQuote struct {
	QuoteID   string    `json:"quote_id"`
	EventID   string    `json:"event_id"`
	Cost      int64     `json:"cost"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SuperchatResult struct {
	Cost    int64 `json:"cost"`
	Points  int64 `json:"points"`
	Balance int64 `json:"balance"`
}

type ActionResult struct {
	Points int64 `json:"points"`
	Total  int64 `json:"total"`
}

type SettleSummary struct {
	EventID  string        `json:"event_id"`
	Awarded  []AwardRecord `json:"awarded"`
	Failures int           `json:"failures"`
}

type AwardRecord struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
	Name   string `json:"name"`
	Rarity string `json:"rarity"`
}
