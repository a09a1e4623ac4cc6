package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory/postgres"
	embedmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/embeddings/mock"
)

// testDSN skips the test unless VOCABTUTOR_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOCABTUTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOCABTUTOR_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T, embedder *embedmock.Provider) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS memory_buckets, memory_chunks`); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn, embedder)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_Buckets(t *testing.T) {
	s := newTestStore(t, &embedmock.Provider{})
	ctx := context.Background()

	p, err := s.Bootstrap(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p.Semantic.Level != "B1" {
		t.Errorf("empty bootstrap level = %q, want B1", p.Semantic.Level)
	}

	ep := p.Episodic
	ep.AddEpisode(memory.Episode{Reviewed: 2, DifficultWords: []string{"w1"}}, nil)
	if err := s.PutBucket(ctx, "alice", memory.BucketEpisodic, ep); err != nil {
		t.Fatal(err)
	}
	if err := s.PutBucket(ctx, "alice", "shortTerm", ep); err == nil {
		t.Error("PutBucket accepted an unknown bucket")
	}

	p, err = s.Bootstrap(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Episodic.DifficultWords) != 1 || p.Episodic.DifficultWords[0] != "w1" {
		t.Errorf("DifficultWords = %v", p.Episodic.DifficultWords)
	}

	other, err := s.Bootstrap(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(other.Episodic.DifficultWords) != 0 {
		t.Error("bucket leaked across users")
	}
}

func TestStore_Semantic(t *testing.T) {
	embedder := &embedmock.Provider{
		Dims: 3,
		Vectors: map[string][]float32{
			"loves cooking shows":   {1, 0, 0},
			"struggles with idioms": {0, 1, 0},
			"food":                  {0.9, 0.1, 0},
			"bob secret":            {1, 0, 0},
		},
	}
	s := newTestStore(t, embedder)
	ctx := context.Background()

	for _, text := range []string{"loves cooking shows", "struggles with idioms"} {
		if err := s.AddSemantic(ctx, "alice", text, map[string]string{"type": "session_summary"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddSemantic(ctx, "bob", "bob secret", nil); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchSemantic(ctx, "alice", "food", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "loves cooking shows" {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Metadata["userId"] != "alice" || hits[0].Metadata["type"] != "session_summary" {
		t.Errorf("metadata = %v", hits[0].Metadata)
	}
}
