// Package postgres implements memory.Service on PostgreSQL.
//
// Buckets are JSONB documents keyed by (user_id, bucket). Semantic memory is
// a chunks table with a pgvector column and an HNSW cosine index; texts are
// embedded on write and queries on search with the same
// [embeddings.Provider].
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/embeddings"
)

var _ memory.Service = (*Store)(nil)

const ddlBuckets = `
CREATE TABLE IF NOT EXISTS memory_buckets (
    user_id     TEXT         NOT NULL,
    bucket      TEXT         NOT NULL,
    value       JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, bucket)
);
`

func ddlChunks(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_chunks (
    id          UUID         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    embedding   vector(%d)   NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memory_chunks_user
    ON memory_chunks (user_id);

CREATE INDEX IF NOT EXISTS idx_memory_chunks_embedding
    ON memory_chunks USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Migrate creates the bucket and chunk tables. dims is baked into the
// vector column; changing it later needs a manual migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	for _, stmt := range []string{ddlBuckets, ddlChunks(dims)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("memory postgres: migrate: %w", err)
		}
	}
	return nil
}

// Store implements memory.Service.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore connects to dsn, registers pgvector types on every connection
// and migrates the schema sized for embedder.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("memory postgres: embedder is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, embedder: embedder}, nil
}

// Bootstrap implements memory.Service.
func (s *Store) Bootstrap(ctx context.Context, userID string) (memory.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT bucket, value FROM memory_buckets WHERE user_id = $1`, userID)
	if err != nil {
		return memory.Profile{}, fmt.Errorf("memory postgres: bootstrap: %w", err)
	}
	raw := make(map[string]json.RawMessage, len(memory.Buckets))
	var (
		bucket string
		value  []byte
	)
	_, err = pgx.ForEachRow(rows, []any{&bucket, &value}, func() error {
		raw[bucket] = json.RawMessage(append([]byte(nil), value...))
		return nil
	})
	if err != nil {
		return memory.Profile{}, fmt.Errorf("memory postgres: bootstrap: %w", err)
	}
	return memory.ProfileFromBuckets(raw)
}

// PutBucket implements memory.Service.
func (s *Store) PutBucket(ctx context.Context, userID, bucket string, value any) error {
	if !memory.ValidBucket(bucket) {
		return fmt.Errorf("memory postgres: unknown bucket %q", bucket)
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory postgres: marshal %s: %w", bucket, err)
	}
	const q = `
		INSERT INTO memory_buckets (user_id, bucket, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, bucket) DO UPDATE SET
		    value      = EXCLUDED.value,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, userID, bucket, doc); err != nil {
		return fmt.Errorf("memory postgres: put %s: %w", bucket, err)
	}
	return nil
}

// AddSemantic implements memory.Service.
func (s *Store) AddSemantic(ctx context.Context, userID, text string, metadata map[string]string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("memory postgres: embed: %w", err)
	}
	meta := make(map[string]string, len(metadata)+1)
	maps.Copy(meta, metadata)
	meta["userId"] = userID
	doc, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("memory postgres: marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO memory_chunks (id, user_id, content, metadata, embedding) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), userID, text, doc, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("memory postgres: add semantic: %w", err)
	}
	return nil
}

// SearchSemantic implements memory.Service.
func (s *Store) SearchSemantic(ctx context.Context, userID, query string, k int) ([]memory.Hit, error) {
	if k <= 0 {
		k = 5
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: embed query: %w", err)
	}

	const q = `
		SELECT content, metadata
		FROM   memory_chunks
		WHERE  user_id = $2
		ORDER  BY embedding <=> $1
		LIMIT  $3`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), userID, k)
	if err != nil {
		return nil, fmt.Errorf("memory postgres: search: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Hit, error) {
		var (
			h    memory.Hit
			meta []byte
		)
		if err := row.Scan(&h.Text, &meta); err != nil {
			return h, err
		}
		return h, json.Unmarshal(meta, &h.Metadata)
	})
	if err != nil {
		return nil, fmt.Errorf("memory postgres: scan: %w", err)
	}
	if hits == nil {
		hits = []memory.Hit{}
	}
	return hits, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }
