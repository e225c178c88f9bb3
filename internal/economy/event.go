package economy

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Service) CreateBossEvent(ctx context.Context, subjectID string, spawnAt, endsAt time.Time) (EventView, error) {
	out := EventView{
		EventID:   uuid.NewString(),
		SubjectID: subjectID,
		SpawnAt:   spawnAt,
		EndsAt:    endsAt,
		Status:    "scheduled",
	}
	if !spawnAt.After(time.Now()) {
		out.Status = "active"
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO events.boss_events (event_id, subject_id, spawn_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, out.EventID, subjectID, spawnAt, endsAt, out.Status)
	return out, err
}

// ActivateDueEvents and EndDueEvents drive the scheduled -> active -> ended
// transitions. Both are conditional updates, so repeated worker ticks are
// harmless.
func (s *Service) ActivateDueEvents(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE events.boss_events
		SET status = 'active', updated_at = now()
		WHERE status = 'scheduled' AND spawn_at <= now()
	`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *Service) EndDueEvents(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE events.boss_events
		SET status = 'ended', updated_at = now()
		WHERE status = 'active' AND ends_at <= now()
	`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (s *Service) Event(ctx context.Context, eventID string) (EventView, error) {
	var out EventView
	err := s.db.QueryRow(ctx, `
		SELECT event_id, subject_id, spawn_at, ends_at, status, points_total, morale_score
		FROM events.boss_events
		WHERE event_id = $1
	`, eventID).Scan(&out.EventID, &out.SubjectID, &out.SpawnAt, &out.EndsAt, &out.Status, &out.PointsTotal, &out.MoraleScore)
	if err == pgx.ErrNoRows {
		return out, ErrEventNotFound
	}
	return out, err
}

func (s *Service) Standings(ctx context.Context, eventID string) ([]StandingRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, points, like_count, subscribe_count, superchat_count, first_contribution_at
		FROM events.boss_points
		WHERE event_id = $1
		ORDER BY points DESC, first_contribution_at ASC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StandingRow
	for rows.Next() {
		var r StandingRow
		if err := rows.Scan(&r.UserID, &r.Points, &r.Likes, &r.Subscribes, &r.Superchats, &r.FirstContributionAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func activeEventTx(ctx context.Context, tx pgx.Tx, eventID string) (string, error) {
	var subjectID, status string
	err := tx.QueryRow(ctx, `
		SELECT subject_id, status FROM events.boss_events WHERE event_id = $1 FOR UPDATE
	`, eventID).Scan(&subjectID, &status)
	if err == pgx.ErrNoRows {
		return "", ErrEventNotFound
	}
	if err != nil {
		return "", err
	}
	if status != "active" {
		return "", ErrEventNotActive
	}
	return subjectID, nil
}

// accruePointsTx upserts the user's per-event record and bumps the event
// totals in the same transaction as the action that earned them. Returns the
// user's new point total for the event.
func accruePointsTx(ctx context.Context, tx pgx.Tx, eventID, userID string, points int64, counter string) (int64, error) {
	switch counter {
	case "like_count", "subscribe_count", "superchat_count":
	default:
		return 0, errors.New("unknown action counter " + counter)
	}
	var total int64
	err := tx.QueryRow(ctx, `
		INSERT INTO events.boss_points (event_id, user_id, points, `+counter+`, first_contribution_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET points = events.boss_points.points + EXCLUDED.points,
		              `+counter+` = events.boss_points.`+counter+` + 1,
		              updated_at = now()
		RETURNING points
	`, eventID, userID, points).Scan(&total)
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE events.boss_events
		SET points_total = points_total + $1,
		    morale_score = morale_score + $2,
		    updated_at = now()
		WHERE event_id = $3
	`, points, points/10, eventID)
	return total, err
}

// LikeEvent awards like points at most once per (event, user), checked
// against the audit log inside the awarding transaction. An independent
// per-user throttle rejects bursts before any transaction starts.
func (s *Service) LikeEvent(ctx context.Context, eventID, userID string) (ActionResult, error) {
	var out ActionResult
	if !s.throttle.Allow("like|" + userID) {
		return out, ErrThrottled
	}
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if _, err := activeEventTx(ctx, tx, eventID); err != nil {
			return err
		}
		var liked bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM events.audit_log
				WHERE event_id = $1 AND user_id = $2 AND action = 'like'
			)
		`, eventID, userID).Scan(&liked); err != nil {
			return err
		}
		if liked {
			return ErrAlreadyLiked
		}
		total, err := accruePointsTx(ctx, tx, eventID, userID, LikePoints, "like_count")
		if err != nil {
			return err
		}
		out.Total = total
		return appendEventAudit(ctx, tx, eventID, userID, "like", LikePoints, nil)
	})
	if err != nil {
		return ActionResult{}, err
	}
	out.Points = LikePoints
	return out, nil
}

// SubscribeEvent consumes one user-chosen card of a qualifying rarity. The
// card debit and the point award share a transaction, so neither can happen
// without the other.
func (s *Service) SubscribeEvent(ctx context.Context, eventID, userID, cardName, rarity string) (ActionResult, error) {
	var out ActionResult
	if !SubscribeQualifies(rarity) {
		return out, ErrInvalidRarity
	}
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if _, err := activeEventTx(ctx, tx, eventID); err != nil {
			return err
		}
		if err := debitTx(ctx, tx, userID, cardName, rarity, 1); err != nil {
			return err
		}
		total, err := accruePointsTx(ctx, tx, eventID, userID, SubscribePoints, "subscribe_count")
		if err != nil {
			return err
		}
		out.Total = total
		return appendEventAudit(ctx, tx, eventID, userID, "subscribe", SubscribePoints, map[string]any{
			"card_name": cardName,
			"rarity":    rarity,
		})
	})
	if err != nil {
		return ActionResult{}, err
	}
	out.Points = SubscribePoints
	return out, nil
}

// QuoteSuperchat computes the current cost from the user's prior superchat
// count and parks it for confirmation. The quote expires with no effect.
func (s *Service) QuoteSuperchat(ctx context.Context, eventID, userID string) (SuperchatQuote, error) {
	var out SuperchatQuote
	ev, err := s.Event(ctx, eventID)
	if err != nil {
		return out, err
	}
	if ev.Status != "active" {
		return out, ErrEventNotActive
	}
	var prior int64
	err = s.db.QueryRow(ctx, `
		SELECT superchat_count FROM events.boss_points
		WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&prior)
	if err != nil && err != pgx.ErrNoRows {
		return out, err
	}
	cost := SuperchatCost(prior)
	quoteID, expiresAt := s.confirms.Put(eventID, userID, cost)
	return SuperchatQuote{QuoteID: quoteID, EventID: eventID, Cost: cost, ExpiresAt: expiresAt}, nil
}

// ConfirmSuperchat debits exactly the quoted cost and awards the points in
// one transaction. The live count is re-read: a quote that fell below the
// current minimum (another superchat landed in between) is rejected.
func (s *Service) ConfirmSuperchat(ctx context.Context, quoteID, userID, idemKey string) (SuperchatResult, error) {
	var out SuperchatResult
	q, ok := s.confirms.Take(quoteID)
	if !ok {
		return out, ErrConfirmationExpired
	}
	if q.userID != userID {
		return out, ErrUnauthorized
	}
	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		if _, err := activeEventTx(ctx, tx, q.eventID); err != nil {
			return err
		}
		if err := claimIdempotency(ctx, tx, userID, idemKey, "superchat"); err != nil {
			return err
		}
		var prior int64
		err := tx.QueryRow(ctx, `
			SELECT superchat_count FROM events.boss_points
			WHERE event_id = $1 AND user_id = $2
			FOR UPDATE
		`, q.eventID, userID).Scan(&prior)
		if err != nil && err != pgx.ErrNoRows {
			return err
		}
		if q.cost < SuperchatCost(prior) {
			return ErrStaleQuote
		}
		balance, err := debitBalanceTx(ctx, tx, userID, q.cost)
		if err != nil {
			return err
		}
		if err := appendWalletEntries(ctx, tx, userID, "superchat", q.cost); err != nil {
			return err
		}
		points := SuperchatPoints(q.cost)
		if _, err := accruePointsTx(ctx, tx, q.eventID, userID, points, "superchat_count"); err != nil {
			return err
		}
		if err := appendEventAudit(ctx, tx, q.eventID, userID, "superchat", points, map[string]any{"cost": q.cost}); err != nil {
			return err
		}
		out = SuperchatResult{Cost: q.cost, Points: points, Balance: balance}
		return nil
	})
	if err != nil {
		return SuperchatResult{}, err
	}
	return out, nil
}

// PlannedAward pairs a user with the reward slot they earned.
type PlannedAward struct {
	UserID string
	Tier   string
	Slot   string
}

// BuildAwardPlan ranks standings by points desc, tie-broken by earliest
// first contribution, and lays out the settlement awards: tiered rewards
// for the top three (rank 1 additionally receives the rank-2 reward) and a
// participation reward for every user with positive points.
func BuildAwardPlan(standings []StandingRow) []PlannedAward {
	ranked := make([]StandingRow, 0, len(standings))
	for _, r := range standings {
		if r.Points > 0 {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Points != ranked[j].Points {
			return ranked[i].Points > ranked[j].Points
		}
		return ranked[i].FirstContributionAt.Before(ranked[j].FirstContributionAt)
	})

	var plan []PlannedAward
	for i, r := range ranked {
		switch i {
		case 0:
			plan = append(plan,
				PlannedAward{UserID: r.UserID, Tier: "rank1", Slot: "rank1"},
				PlannedAward{UserID: r.UserID, Tier: "rank1-bonus", Slot: "rank2"},
			)
		case 1:
			plan = append(plan, PlannedAward{UserID: r.UserID, Tier: "rank2", Slot: "rank2"})
		case 2:
			plan = append(plan, PlannedAward{UserID: r.UserID, Tier: "rank3", Slot: "rank3"})
		}
	}
	for _, r := range ranked {
		plan = append(plan, PlannedAward{UserID: r.UserID, Tier: "participation", Slot: "participation"})
	}
	return plan
}

// SettleEndedEvents settles every event currently in the ended state.
func (s *Service) SettleEndedEvents(ctx context.Context) ([]SettleSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT event_id FROM events.boss_events WHERE status = 'ended'
	`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []SettleSummary
	for _, id := range ids {
		summary, err := s.SettleEvent(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				continue
			}
			s.log.Error("event settlement failed", "event_id", id, "err", err)
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

// SettleEvent runs the one-time reward distribution for an ended event. A
// failure awarding one user is logged and skipped; the pass still completes
// and the terminal transition to settled makes re-invocation a no-op.
func (s *Service) SettleEvent(ctx context.Context, eventID string) (SettleSummary, error) {
	summary := SettleSummary{EventID: eventID}

	ev, err := s.Event(ctx, eventID)
	if err != nil {
		return summary, err
	}
	if ev.Status == "settled" {
		return summary, ErrAlreadySettled
	}
	if ev.Status != "ended" {
		return summary, ErrEventNotActive
	}

	standings, err := s.Standings(ctx, eventID)
	if err != nil {
		return summary, err
	}

	for _, award := range BuildAwardPlan(standings) {
		item, err := s.drawItem(award.Slot, ev.SubjectID, 1.0)
		if err != nil {
			s.log.Error("award draw failed", "event_id", eventID, "user_id", award.UserID, "tier", award.Tier, "err", err)
			summary.Failures++
			continue
		}
		awardErr := s.runSerializable(ctx, func(tx pgx.Tx) error {
			if err := claimIdempotency(ctx, tx, award.UserID, "settle:"+eventID+":"+award.Tier, "event_award"); err != nil {
				return err
			}
			if err := creditTx(ctx, tx, award.UserID, item.Name, item.Rarity, 1); err != nil {
				return err
			}
			return appendEventAudit(ctx, tx, eventID, award.UserID, "award:"+award.Tier, 0, map[string]any{
				"name":   item.Name,
				"rarity": item.Rarity,
			})
		})
		if awardErr != nil {
			if errors.Is(awardErr, ErrDuplicateIdempotency) {
				continue
			}
			s.log.Error("award failed", "event_id", eventID, "user_id", award.UserID, "tier", award.Tier, "err", awardErr)
			summary.Failures++
			continue
		}
		summary.Awarded = append(summary.Awarded, AwardRecord{
			UserID: award.UserID, Tier: award.Tier, Name: item.Name, Rarity: item.Rarity,
		})
	}

	cmd, err := s.db.Exec(ctx, `
		UPDATE events.boss_events
		SET status = 'settled', updated_at = now()
		WHERE event_id = $1 AND status = 'ended'
	`, eventID)
	if err != nil {
		return summary, err
	}
	if cmd.RowsAffected() == 0 {
		return summary, ErrAlreadySettled
	}
	return summary, nil
}
