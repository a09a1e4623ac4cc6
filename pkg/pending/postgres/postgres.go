// Package postgres provides a pending.Store backed by PostgreSQL.
//
// Each update is a row keyed by (user_key, vocabulary_id). The upsert keeps
// the row's original sequence number so Load returns updates in first-insert
// order while the payload reflects the latest write.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ pending.Store = (*Store)(nil)

const ddlPendingUpdates = `
CREATE TABLE IF NOT EXISTS pending_updates (
    seq           BIGSERIAL    NOT NULL,
    user_key      TEXT         NOT NULL,
    vocabulary_id TEXT         NOT NULL,
    payload       JSONB        NOT NULL,
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (user_key, vocabulary_id)
);

CREATE INDEX IF NOT EXISTS idx_pending_updates_user_seq
    ON pending_updates (user_key, seq);
`

// Store implements pending.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the database and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pending postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pending postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pending postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the pending_updates table. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlPendingUpdates); err != nil {
		return fmt.Errorf("create pending_updates: %w", err)
	}
	return nil
}

// Load implements pending.Store.
func (s *Store) Load(ctx context.Context, userID string) ([]review.PendingUpdate, error) {
	list, err := load(ctx, s.pool, userID)
	if err != nil {
		return nil, fmt.Errorf("pending postgres: load: %w", err)
	}
	return list, nil
}

// Upsert implements pending.Store.
func (s *Store) Upsert(ctx context.Context, userID string, u review.PendingUpdate) ([]review.PendingUpdate, error) {
	payload, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("pending postgres: marshal: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const q = `
		INSERT INTO pending_updates (user_key, vocabulary_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_key, vocabulary_id) DO UPDATE SET
		    payload    = EXCLUDED.payload,
		    updated_at = now()`
	if _, err := tx.Exec(ctx, q, pending.Key(userID), u.VocabularyID, payload); err != nil {
		return nil, fmt.Errorf("pending postgres: upsert: %w", err)
	}

	list, err := load(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("pending postgres: upsert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pending postgres: commit: %w", err)
	}
	return list, nil
}

// Remove implements pending.Store. A row is deleted only while its payload
// still equals the sent update; jsonb equality ignores key order and spacing.
func (s *Store) Remove(ctx context.Context, userID string, sent []review.PendingUpdate) error {
	if len(sent) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, u := range sent {
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("pending postgres: marshal: %w", err)
		}
		batch.Queue(
			`DELETE FROM pending_updates WHERE user_key = $1 AND vocabulary_id = $2 AND payload = $3::jsonb`,
			pending.Key(userID), u.VocabularyID, payload,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pending postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("pending postgres: remove: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pending postgres: commit: %w", err)
	}
	return nil
}

// Clear implements pending.Store.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_updates WHERE user_key = $1`, pending.Key(userID)); err != nil {
		return fmt.Errorf("pending postgres: clear: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func load(ctx context.Context, q queryer, userID string) ([]review.PendingUpdate, error) {
	rows, err := q.Query(ctx,
		`SELECT payload FROM pending_updates WHERE user_key = $1 ORDER BY seq`,
		pending.Key(userID),
	)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.PendingUpdate, error) {
		var raw []byte
		var u review.PendingUpdate
		if err := row.Scan(&raw); err != nil {
			return u, err
		}
		err := json.Unmarshal(raw, &u)
		return u, err
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []review.PendingUpdate{}
	}
	return list, nil
}
