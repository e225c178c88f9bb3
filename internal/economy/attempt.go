package economy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// StartLiveAttempt reserves one copy of the named card for the stage mapped
// to its rarity. The stage-exclusivity check, the card debit, and the
// attempt insert happen inside one transaction, so two concurrent starts
// cannot both pass a stale check.
func (s *Service) StartLiveAttempt(ctx context.Context, userID, cardName, rarity string) (StartAttemptResult, error) {
	var out StartAttemptResult
	stage, ok := StageForRarity(rarity)
	if !ok {
		return out, ErrInvalidRarity
	}

	var busyUntil time.Time
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		var existing time.Time
		err := tx.QueryRow(ctx, `
			SELECT ready_at FROM cards.pending_attempts
			WHERE user_id = $1 AND stage = $2 AND resolved = false
			FOR UPDATE
		`, userID, stage.Number).Scan(&existing)
		if err == nil {
			busyUntil = existing
			return ErrStageBusy
		}
		if err != pgx.ErrNoRows {
			return err
		}

		if err := debitTx(ctx, tx, userID, cardName, rarity, 1); err != nil {
			if errors.Is(err, ErrInsufficientQuantity) || errors.Is(err, ErrCardLocked) {
				return ErrNoCard
			}
			return err
		}

		now := time.Now()
		out.Attempt = AttemptView{
			ID:        uuid.NewString(),
			CardName:  cardName,
			Rarity:    rarity,
			Stage:     stage.Number,
			StartedAt: now,
			ReadyAt:   now.Add(stage.Duration),
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO cards.pending_attempts (id, user_id, card_name, rarity, stage, started_at, ready_at, resolved)
			VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		`, out.Attempt.ID, userID, cardName, rarity, stage.Number, now, out.Attempt.ReadyAt)
		return err
	})
	if errors.Is(err, ErrStageBusy) {
		out.BusyUntil = &busyUntil
		return out, ErrStageBusy
	}
	if isUniqueViolation(err) {
		// The partial unique index on (user_id, stage) caught a racing start.
		if t, qerr := s.stageBusyUntil(ctx, userID, stage.Number); qerr == nil {
			out.BusyUntil = &t
		}
		return out, ErrStageBusy
	}
	return out, err
}

func (s *Service) stageBusyUntil(ctx context.Context, userID string, stage int) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(ctx, `
		SELECT ready_at FROM cards.pending_attempts
		WHERE user_id = $1 AND stage = $2 AND resolved = false
		ORDER BY ready_at
		LIMIT 1
	`, userID, stage).Scan(&t)
	return t, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ResolveAttempt settles one pending attempt. Marking resolved is a
// conditional update (resolved=false to true), so concurrent or repeated
// calls yield exactly one reward; the losers see ErrAlreadyResolved. A
// successful attempt restores the consumed card and grants one bonus item
// from the bonus pool; a failed attempt keeps the card consumed.
func (s *Service) ResolveAttempt(ctx context.Context, userID, attemptID string) (ResolvedAttempt, error) {
	var out ResolvedAttempt
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		var cardName, rarity string
		var stageNum int
		var readyAt time.Time
		var resolved bool
		err := tx.QueryRow(ctx, `
			SELECT card_name, rarity, stage, ready_at, resolved
			FROM cards.pending_attempts
			WHERE id = $1 AND user_id = $2
			FOR UPDATE
		`, attemptID, userID).Scan(&cardName, &rarity, &stageNum, &readyAt, &resolved)
		if err == pgx.ErrNoRows {
			return ErrAttemptNotFound
		}
		if err != nil {
			return err
		}
		if resolved {
			return ErrAlreadyResolved
		}
		if readyAt.After(time.Now()) {
			return ErrAttemptNotReady
		}

		stage, ok := StageForRarity(rarity)
		if !ok {
			return ErrInvalidRarity
		}
		success := s.nextFloat() < stage.SuccessProb

		cmd, err := tx.Exec(ctx, `
			UPDATE cards.pending_attempts
			SET resolved = true, success = $1, resolved_at = now()
			WHERE id = $2 AND resolved = false
		`, success, attemptID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrAlreadyResolved
		}

		out = ResolvedAttempt{ID: attemptID, CardName: cardName, Rarity: rarity, Success: success}
		if !success {
			// The consumed card stays consumed: the attempt sink.
			return nil
		}
		if err := creditTx(ctx, tx, userID, cardName, rarity, 1); err != nil {
			return err
		}
		pool := s.cat.BonusPool()
		if len(pool) == 0 {
			s.log.Error("bonus pool is empty, attempt succeeds without bonus", "attempt_id", attemptID)
			return nil
		}
		bonus := pool[s.nextIndex(len(pool))]
		if err := creditTx(ctx, tx, userID, bonus.Name, bonus.Rarity, 1); err != nil {
			return err
		}
		out.Bonus = &CardRef{Name: bonus.Name, Rarity: bonus.Rarity}
		return nil
	})
	if err != nil {
		return ResolvedAttempt{}, err
	}
	return out, nil
}

// ClaimReadyAttempts resolves up to ClaimBatchLimit ready attempts, earliest
// ready first so same-stage duplicates (defended against, should not occur)
// settle deterministically.
func (s *Service) ClaimReadyAttempts(ctx context.Context, userID string) (ClaimResult, error) {
	var out ClaimResult
	rows, err := s.db.Query(ctx, `
		SELECT id FROM cards.pending_attempts
		WHERE user_id = $1 AND resolved = false AND ready_at <= now()
		ORDER BY ready_at, id
		LIMIT $2
	`, userID, ClaimBatchLimit)
	if err != nil {
		return out, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return out, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	for _, id := range ids {
		res, err := s.ResolveAttempt(ctx, userID, id)
		if err != nil {
			if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrAttemptNotReady) {
				out.Skipped++
				continue
			}
			s.log.Error("attempt resolution failed", "attempt_id", id, "err", err)
			out.Skipped++
			continue
		}
		out.Resolved = append(out.Resolved, res)
	}
	return out, nil
}

// PendingAttempts lists the user's attempt history, unresolved first.
func (s *Service) PendingAttempts(ctx context.Context, userID string) ([]AttemptView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, card_name, rarity, stage, started_at, ready_at, resolved, success
		FROM cards.pending_attempts
		WHERE user_id = $1
		ORDER BY resolved, ready_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptView
	for rows.Next() {
		var v AttemptView
		if err := rows.Scan(&v.ID, &v.CardName, &v.Rarity, &v.Stage, &v.StartedAt, &v.ReadyAt, &v.Resolved, &v.Success); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
