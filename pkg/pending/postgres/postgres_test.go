package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/postgres"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOCABTUTOR_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOCABTUTOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOCABTUTOR_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS pending_updates CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func upd(id string, rating review.Rating) review.PendingUpdate {
	return review.PendingUpdate{
		CardUpdate: review.CardUpdate{VocabularyID: id, State: review.StateReview},
		Rating:     rating,
	}
}

func TestStore_UpsertLoadClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, "alice", upd("w1", 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "alice", upd("w2", 2)); err != nil {
		t.Fatal(err)
	}
	list, err := s.Upsert(ctx, "alice", upd("w1", 4))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("Upsert returned %d entries, want 2", len(list))
	}
	if list[0].VocabularyID != "w1" || list[0].Rating != 4 {
		t.Errorf("list[0] = %+v, want w1 rated 4 in first position", list[0])
	}

	other, err := s.Load(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("bob sees %d updates", len(other))
	}

	if err := s.Clear(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	list, err = s.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("after Clear len = %d", len(list))
	}
}

func TestStore_RemoveKeepsNewerWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	difficulty := 4.2
	first := upd("w1", 1)
	first.Difficulty = &difficulty
	for _, u := range []review.PendingUpdate{first, upd("w2", 2)} {
		if _, err := s.Upsert(ctx, "alice", u); err != nil {
			t.Fatal(err)
		}
	}
	sent, err := s.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, "alice", upd("w2", 4)); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(ctx, "alice", sent); err != nil {
		t.Fatal(err)
	}
	list, err := s.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].VocabularyID != "w2" || list[0].Rating != 4 {
		t.Errorf("after Remove = %+v, want w2 rated 4", list)
	}
}
