// Package sqlite provides a pending.Store backed by a local SQLite database
// file. It is the default backend: review outcomes survive restarts of the
// service without any external infrastructure.
//
// Each user owns one row under its namespaced key (see [pending.Key]) holding
// the insertion-ordered JSON array of updates.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ pending.Store = (*Store)(nil)

const migrationsSQL = `
CREATE TABLE IF NOT EXISTS pending_updates (
    key        TEXT    PRIMARY KEY,
    payload    TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store implements pending.Store on a SQLite file.
type Store struct {
	db *sql.DB

	// mu serialises read-merge-write cycles; SQLite allows a single writer.
	mu sync.Mutex
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("pending sqlite: path must not be empty")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("pending sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	for _, s := range strings.Split(migrationsSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Load implements pending.Store.
func (s *Store) Load(ctx context.Context, userID string) ([]review.PendingUpdate, error) {
	list, err := load(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: load: %w", err)
	}
	return list, nil
}

// Upsert implements pending.Store.
func (s *Store) Upsert(ctx context.Context, userID string, u review.PendingUpdate) ([]review.PendingUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	list, err := load(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: upsert: %w", err)
	}
	list = pending.Merge(list, u)

	payload, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: marshal: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_updates (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		pending.Key(userID), string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("pending sqlite: upsert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pending sqlite: commit: %w", err)
	}
	return list, nil
}

// Remove implements pending.Store.
func (s *Store) Remove(ctx context.Context, userID string, sent []review.PendingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pending sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	list, err := load(ctx, tx, userID)
	if err != nil {
		return fmt.Errorf("pending sqlite: remove: %w", err)
	}
	rest := pending.Prune(list, sent)
	switch {
	case len(rest) == len(list):
		return nil
	case len(rest) == 0:
		_, err = tx.ExecContext(ctx, `DELETE FROM pending_updates WHERE key = ?`, pending.Key(userID))
	default:
		payload, merr := json.Marshal(rest)
		if merr != nil {
			return fmt.Errorf("pending sqlite: marshal: %w", merr)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE pending_updates SET payload = ?, updated_at = ? WHERE key = ?`,
			string(payload), time.Now().UnixMilli(), pending.Key(userID),
		)
	}
	if err != nil {
		return fmt.Errorf("pending sqlite: remove: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pending sqlite: commit: %w", err)
	}
	return nil
}

// Clear implements pending.Store.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_updates WHERE key = ?`, pending.Key(userID)); err != nil {
		return fmt.Errorf("pending sqlite: clear: %w", err)
	}
	return nil
}

// Ping checks that the database file is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func load(ctx context.Context, q querier, userID string) ([]review.PendingUpdate, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT payload FROM pending_updates WHERE key = ?`, pending.Key(userID)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []review.PendingUpdate{}, nil
	}
	if err != nil {
		return nil, err
	}
	list := []review.PendingUpdate{}
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return list, nil
}
