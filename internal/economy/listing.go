package economy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Service) CreateListing(ctx context.Context, ownerID string, offering []CardAmount, wanted []WantedEntry, ttl time.Duration) (ListingView, error) {
	out := ListingView{
		ListingID: uuid.NewString(),
		OwnerID:   ownerID,
		Offering:  offering,
		Wanted:    wanted,
		Status:    "active",
		ExpiresAt: time.Now().Add(ttl),
	}
	offeringJSON, err := json.Marshal(offering)
	if err != nil {
		return out, err
	}
	wantedJSON, err := json.Marshal(wanted)
	if err != nil {
		return out, err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO cards.trade_listings (listing_id, owner_id, offering, wanted, status, expires_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, 'active', $5)
	`, out.ListingID, ownerID, string(offeringJSON), string(wantedJSON), out.ExpiresAt)
	return out, err
}

func (s *Service) ActiveListings(ctx context.Context) ([]ListingView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT listing_id, owner_id, offering, wanted, status, expires_at
		FROM cards.trade_listings
		WHERE status = 'active' AND expires_at > now()
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListingView
	for rows.Next() {
		var v ListingView
		var offeringJSON, wantedJSON []byte
		if err := rows.Scan(&v.ListingID, &v.OwnerID, &offeringJSON, &wantedJSON, &v.Status, &v.ExpiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(offeringJSON, &v.Offering); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(wantedJSON, &v.Wanted); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Service) CancelListing(ctx context.Context, listingID, ownerID string) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE cards.trade_listings
		SET status = 'cancelled', updated_at = now()
		WHERE listing_id = $1 AND owner_id = $2 AND status = 'active'
	`, listingID, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// SettleListing performs the single-shot atomic swap: the owner's offering
// moves to the initiator and one copy of every specific wanted item moves
// back, all inside one transaction. Any wanted entry that is not of type
// specific fails the whole operation.
func (s *Service) SettleListing(ctx context.Context, listingID, initiatorID, idemKey string) (ListingSettleResult, error) {
	var out ListingSettleResult
	out.ListingID = listingID

	err := s.runSerializable(ctx, func(tx pgx.Tx) error {
		out.Received = nil
		out.Paid = nil

		var ownerID, status string
		var expiresAt time.Time
		var offeringJSON, wantedJSON []byte
		err := tx.QueryRow(ctx, `
			SELECT owner_id, offering, wanted, status, expires_at
			FROM cards.trade_listings
			WHERE listing_id = $1
			FOR UPDATE
		`, listingID).Scan(&ownerID, &offeringJSON, &wantedJSON, &status, &expiresAt)
		if err == pgx.ErrNoRows {
			return ErrListingNotFound
		}
		if err != nil {
			return err
		}
		if status != "active" || !expiresAt.After(time.Now()) {
			return ErrListingNotActive
		}

		if err := claimIdempotency(ctx, tx, initiatorID, idemKey, "listing_settle"); err != nil {
			return err
		}

		var offering []CardAmount
		var wanted []WantedEntry
		if err := json.Unmarshal(offeringJSON, &offering); err != nil {
			return err
		}
		if err := json.Unmarshal(wantedJSON, &wanted); err != nil {
			return err
		}
		for _, w := range wanted {
			if w.Type != WantedSpecific {
				return ErrUnsupportedWantedType
			}
		}

		// Owner side first: every offered item, unlocked, in quantity.
		for _, item := range offering {
			if err := debitTx(ctx, tx, ownerID, item.Name, item.Rarity, item.Count); err != nil {
				return err
			}
			if err := creditTx(ctx, tx, initiatorID, item.Name, item.Rarity, item.Count); err != nil {
				return err
			}
			out.Received = append(out.Received, item)
		}
		// Initiator pays one copy of each specific wanted item.
		for _, w := range wanted {
			if err := debitTx(ctx, tx, initiatorID, w.Name, w.Rarity, 1); err != nil {
				return err
			}
			if err := creditTx(ctx, tx, ownerID, w.Name, w.Rarity, 1); err != nil {
				return err
			}
			out.Paid = append(out.Paid, CardRef{Name: w.Name, Rarity: w.Rarity})
		}

		_, err = tx.Exec(ctx, `
			UPDATE cards.trade_listings
			SET status = 'completed', updated_at = now()
			WHERE listing_id = $1
		`, listingID)
		return err
	})
	if err != nil {
		return ListingSettleResult{ListingID: listingID}, err
	}
	return out, nil
}

// ExpireListings cancels active listings whose expiry has passed. Run by the
// worker.
func (s *Service) ExpireListings(ctx context.Context) (int64, error) {
	cmd, err := s.db.Exec(ctx, `
		UPDATE cards.trade_listings
		SET status = 'cancelled', updated_at = now()
		WHERE status = 'active' AND expires_at <= now()
	`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
