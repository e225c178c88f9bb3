package economy

import (
	"errors"
	"time"
)

const (
	StarterBalance = int64(1_000)

	// Attempt stages. Every rarity maps to exactly one stage.
	StageCount = 5

	// Batch-claim cap per invocation.
	ClaimBatchLimit = 25

	// Points awarded per boss-event action.
	LikePoints      = int64(10)
	SubscribePoints = int64(50)

	// Superchat cost ladder: cost(n) = SuperchatBaseCost * (n + 1) for the
	// user's n-th prior superchat in the event. Strictly increasing.
	SuperchatBaseCost = int64(100)
)

var (
	ErrInsufficientQuantity  = errors.New("insufficient card quantity")
	ErrCardLocked            = errors.New("card stack is locked")
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrInvalidRarity         = errors.New("rarity has no attempt stage")
	ErrStageBusy             = errors.New("stage already has an unresolved attempt")
	ErrNoCard                = errors.New("card unavailable for attempt")
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrAttemptNotReady       = errors.New("attempt not ready yet")
	ErrAlreadyResolved       = errors.New("attempt already resolved")
	ErrTradeNotFound         = errors.New("trade session not found")
	ErrTradeClosed           = errors.New("trade session is closed")
	ErrNotParticipant        = errors.New("user is not part of this trade")
	ErrListingNotFound       = errors.New("listing not found")
	ErrListingNotActive      = errors.New("listing is not active")
	ErrUnsupportedWantedType = errors.New("wanted entry type cannot be settled by forced trade")
	ErrEventNotFound         = errors.New("boss event not found")
	ErrEventNotActive        = errors.New("boss event is not active")
	ErrAlreadySettled        = errors.New("boss event already settled")
	ErrAlreadyLiked          = errors.New("already liked this event")
	ErrThrottled             = errors.New("action throttled, slow down")
	ErrConfirmationExpired   = errors.New("confirmation expired")
	ErrStaleQuote            = errors.New("quoted cost is below the current minimum")
	ErrDuplicateIdempotency  = errors.New("duplicate idempotency key")
	ErrTxConflict            = errors.New("transaction conflict, retry later")
	ErrUnauthorized          = errors.New("unauthorized")
)

// Stage describes one attempt tier: how long the card is reserved and the
// probability the attempt succeeds.
type Stage struct {
	Number      int
	Duration    time.Duration
	SuccessProb float64
}

var stageByRarity = map[string]Stage{
	"C":  {Number: 1, Duration: 15 * time.Minute, SuccessProb: 0.85},
	"R":  {Number: 2, Duration: 30 * time.Minute, SuccessProb: 0.65},
	"SR": {Number: 3, Duration: 5 * time.Hour, SuccessProb: 0.40},
	"UR": {Number: 4, Duration: 12 * time.Hour, SuccessProb: 0.15},
	"EX": {Number: 5, Duration: 24 * time.Hour, SuccessProb: 0.05},
}

// StageForRarity maps a rarity tier to its attempt stage.
func StageForRarity(rarity string) (Stage, bool) {
	st, ok := stageByRarity[rarity]
	return st, ok
}

// SubscribeQualifies reports whether a rarity tier can be consumed by the
// boss-event subscribe action. Commons do not qualify.
func SubscribeQualifies(rarity string) bool {
	st, ok := stageByRarity[rarity]
	return ok && st.Number >= 2
}

// SuperchatCost is the cost of the next superchat given the user's prior
// superchat count in the event.
func SuperchatCost(priorCount int64) int64 {
	return SuperchatBaseCost * (priorCount + 1)
}

// SuperchatPoints converts an amount spent into event points.
func SuperchatPoints(cost int64) int64 {
	return cost / 10
}
