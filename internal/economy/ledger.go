package economy

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
)

// Credit adds qty copies of a card to a user's inventory, creating the stack
// on first acquisition.
func (s *Service) Credit(ctx context.Context, userID, name, rarity string, qty int64) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		return creditTx(ctx, tx, userID, name, rarity, qty)
	})
}

// Debit removes qty copies from a user's stack. It fails without mutating
// when the stack is locked or holds fewer than qty copies.
func (s *Service) Debit(ctx context.Context, userID, name, rarity string, qty int64) error {
	return s.runSerializable(ctx, func(tx pgx.Tx) error {
		return debitTx(ctx, tx, userID, name, rarity, qty)
	})
}

// Transfer applies every leg inside one atomic transaction. Quantities are
// re-read with row locks immediately before mutation; on any insufficiency
// the whole transfer aborts and the itemized shortfalls are returned.
func (s *Service) Transfer(ctx context.Context, legs []TransferLeg) ([]Shortfall, error) {
	var shortfalls []Shortfall
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		shortfalls = nil
		found, err := validateLegsTx(ctx, tx, legs)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			shortfalls = found
			return ErrInsufficientQuantity
		}
		for _, leg := range legs {
			for _, item := range leg.Items {
				if err := debitTx(ctx, tx, leg.FromUserID, item.Name, item.Rarity, item.Count); err != nil {
					return err
				}
				if err := creditTx(ctx, tx, leg.ToUserID, item.Name, item.Rarity, item.Count); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return shortfalls, err
}

// GiftCards is an unconditional one-way transfer riding the same primitive
// as negotiated trades.
func (s *Service) GiftCards(ctx context.Context, fromID, toID string, items []CardAmount) ([]Shortfall, error) {
	return s.Transfer(ctx, []TransferLeg{{FromUserID: fromID, ToUserID: toID, Items: items}})
}

// SetCardLock toggles the locked flag that excludes a stack from all
// debit-based operations.
func (s *Service) SetCardLock(ctx context.Context, userID, name, rarity string, locked bool) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE cards.stacks
		SET locked = $1, updated_at = now()
		WHERE user_id = $2 AND name = $3 AND rarity = $4
	`, locked, userID, name, rarity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInsufficientQuantity
	}
	return nil
}

// UnlockedCount reports the live spendable count of a stack. Zero for
// missing or locked stacks.
func (s *Service) UnlockedCount(ctx context.Context, userID, name, rarity string) (int64, error) {
	var count int64
	var locked bool
	err := s.db.QueryRow(ctx, `
		SELECT count, locked FROM cards.stacks
		WHERE user_id = $1 AND name = $2 AND rarity = $3
	`, userID, name, rarity).Scan(&count, &locked)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, nil
	}
	return count, nil
}

func creditTx(ctx context.Context, tx pgx.Tx, userID, name, rarity string, qty int64) error {
	if qty <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO cards.stacks (user_id, name, rarity, count, locked, first_acquired_at)
		VALUES ($1, $2, $3, $4, false, now())
		ON CONFLICT (user_id, name, rarity)
		DO UPDATE SET count = cards.stacks.count + EXCLUDED.count, updated_at = now()
	`, userID, name, rarity, qty)
	return err
}

func debitTx(ctx context.Context, tx pgx.Tx, userID, name, rarity string, qty int64) error {
	if qty <= 0 {
		return nil
	}
	var count int64
	var locked bool
	err := tx.QueryRow(ctx, `
		SELECT count, locked FROM cards.stacks
		WHERE user_id = $1 AND name = $2 AND rarity = $3
		FOR UPDATE
	`, userID, name, rarity).Scan(&count, &locked)
	if err == pgx.ErrNoRows {
		return ErrInsufficientQuantity
	}
	if err != nil {
		return err
	}
	if locked {
		return ErrCardLocked
	}
	if count < qty {
		return ErrInsufficientQuantity
	}
	next := count - qty
	if next == 0 {
		_, err := tx.Exec(ctx, `
			DELETE FROM cards.stacks
			WHERE user_id = $1 AND name = $2 AND rarity = $3
		`, userID, name, rarity)
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE cards.stacks
		SET count = $1, updated_at = now()
		WHERE user_id = $2 AND name = $3 AND rarity = $4
	`, next, userID, name, rarity)
	return err
}

type debitKey struct {
	userID string
	name   string
	rarity string
}

// validateLegsTx locks every debited stack in a deterministic order and
// checks the aggregated per-stack demand against live quantities.
func validateLegsTx(ctx context.Context, tx pgx.Tx, legs []TransferLeg) ([]Shortfall, error) {
	demand := make(map[debitKey]int64)
	for _, leg := range legs {
		for _, item := range leg.Items {
			demand[debitKey{leg.FromUserID, item.Name, item.Rarity}] += item.Count
		}
	}
	keys := make([]debitKey, 0, len(demand))
	for k := range demand {
		keys = append(keys, k)
	}
	// Stable lock order avoids deadlocks between concurrent transfers.
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.userID != b.userID {
			return a.userID < b.userID
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.rarity < b.rarity
	})

	var shortfalls []Shortfall
	for _, k := range keys {
		var count int64
		var locked bool
		err := tx.QueryRow(ctx, `
			SELECT count, locked FROM cards.stacks
			WHERE user_id = $1 AND name = $2 AND rarity = $3
			FOR UPDATE
		`, k.userID, k.name, k.rarity).Scan(&count, &locked)
		if err == pgx.ErrNoRows {
			count = 0
		} else if err != nil {
			return nil, err
		}
		if locked {
			count = 0
		}
		if count < demand[k] {
			shortfalls = append(shortfalls, Shortfall{
				UserID:  k.userID,
				CardRef: CardRef{Name: k.name, Rarity: k.rarity},
				Wanted:  demand[k],
				Held:    count,
			})
		}
	}
	return shortfalls, nil
}
