// Package economy implements the concurrent card-economy core: the inventory
// ledger, the weighted reward selector, trade negotiation and forced-trade
// settlement, the live attempt scheduler, and the boss event lifecycle.
//
// Every inventory-mutating operation runs as one Postgres transaction.
// Contended operations use serializable isolation with row locks and a
// bounded retry loop; quantities are always re-read inside the transaction
// rather than trusted from a caller-supplied snapshot.
package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"encore/internal/catalog"
)

type Service struct {
	db  *pgxpool.Pool
	log *slog.Logger
	cat *catalog.Catalog

	mu   sync.Mutex
	rand *mathrand.Rand

	trades   *TradeBook
	throttle *IntervalGate
	confirms *ConfirmBox

	pickMu   sync.Mutex
	lastPick map[string]string

	confirmTimeout time.Duration
}

// Options tunes the in-memory session machinery. Zero values pick the
// defaults used in production.
type Options struct {
	TradeTimeout   time.Duration
	ConfirmTimeout time.Duration
	LikeInterval   time.Duration
}

func NewService(db *pgxpool.Pool, cat *catalog.Catalog, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TradeTimeout <= 0 {
		opts.TradeTimeout = 5 * time.Minute
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.LikeInterval <= 0 {
		opts.LikeInterval = 10 * time.Second
	}
	s := &Service{
		db:             db,
		log:            logger,
		cat:            cat,
		rand:           mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		throttle:       NewIntervalGate(opts.LikeInterval),
		confirms:       NewConfirmBox(opts.ConfirmTimeout),
		lastPick:       make(map[string]string),
		confirmTimeout: opts.ConfirmTimeout,
	}
	s.trades = NewTradeBook(s, opts.TradeTimeout)
	return s
}

// Catalog exposes the read-only catalog to the presentation layer.
func (s *Service) Catalog() *catalog.Catalog {
	return s.cat
}

func (s *Service) EnsureProfile(ctx context.Context, userID, username string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users.profiles (user_id, username, draw_rate)
		VALUES ($1, $2, 1.0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, username)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO cards.wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, StarterBalance)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) Inventory(ctx context.Context, userID string) (InventoryView, error) {
	out := InventoryView{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT balance FROM cards.wallets WHERE user_id = $1
	`, userID).Scan(&out.Balance)
	if err != nil && err != pgx.ErrNoRows {
		return out, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT name, rarity, count, locked, first_acquired_at
		FROM cards.stacks
		WHERE user_id = $1
		ORDER BY rarity, name
	`, userID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var v StackView
		if err := rows.Scan(&v.Name, &v.Rarity, &v.Count, &v.Locked, &v.FirstAcquiredAt); err != nil {
			return out, err
		}
		out.Stacks = append(out.Stacks, v)
	}
	return out, rows.Err()
}

// runSerializable runs fn inside a serializable transaction, retrying on
// serialization failures with exponential backoff.
func (s *Service) runSerializable(ctx context.Context, fn func(pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID, key, action string) error {
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO cards.idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// debitBalanceTx debits currency with a locking read so concurrent spends
// cannot both pass a stale balance check.
func debitBalanceTx(ctx context.Context, tx pgx.Tx, userID string, amount int64) (int64, error) {
	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT balance FROM cards.wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrInsufficientFunds
		}
		return 0, err
	}
	if balance < amount {
		return balance, ErrInsufficientFunds
	}
	balance -= amount
	_, err := tx.Exec(ctx, `
		UPDATE cards.wallets SET balance = $1, updated_at = now() WHERE user_id = $2
	`, balance, userID)
	return balance, err
}

func appendWalletEntries(ctx context.Context, tx pgx.Tx, userID, action string, amount int64) error {
	txID := uuid.NewString()
	meta, _ := json.Marshal(map[string]any{"action": action})
	_, err := tx.Exec(ctx, `
		INSERT INTO cards.wallet_ledger (tx_group_id, user_id, account, delta, metadata)
		VALUES
		($1, $2, 'wallet', $3, $5::jsonb),
		($1, $2, 'counterparty', $4, $5::jsonb)
	`, txID, userID, -amount, amount, string(meta))
	return err
}

func appendEventAudit(ctx context.Context, tx pgx.Tx, eventID, userID, action string, points int64, meta map[string]any) error {
	raw, _ := json.Marshal(meta)
	_, err := tx.Exec(ctx, `
		INSERT INTO events.audit_log (event_id, user_id, action, points, meta)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, eventID, userID, action, points, string(raw))
	return err
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (s *Service) nextIndex(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}
