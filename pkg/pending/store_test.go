package pending_test

import (
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

func update(id string, rating review.Rating) review.PendingUpdate {
	return review.PendingUpdate{
		CardUpdate: review.CardUpdate{VocabularyID: id, State: review.StateReview},
		Rating:     rating,
	}
}

func TestMerge_LatestWinsKeepsPosition(t *testing.T) {
	t.Parallel()

	var list []review.PendingUpdate
	list = pending.Merge(list, update("w1", 1))
	list = pending.Merge(list, update("w2", 2))
	list = pending.Merge(list, update("w1", 4))

	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].VocabularyID != "w1" || list[0].Rating != 4 {
		t.Errorf("list[0] = %+v, want w1 rated 4", list[0])
	}
	if list[1].VocabularyID != "w2" {
		t.Errorf("list[1] = %q, want w2", list[1].VocabularyID)
	}
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	list := []review.PendingUpdate{update("w1", 1)}
	_ = pending.Merge(list, update("w1", 3))
	if list[0].Rating != 1 {
		t.Errorf("input mutated: rating = %d", list[0].Rating)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()
	if got := pending.Key("alice"); got != "reviewSession.pendingUpdates.alice" {
		t.Errorf("Key() = %q", got)
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	sent := []review.PendingUpdate{update("w1", 3), update("w2", 2)}
	tests := []struct {
		name string
		list []review.PendingUpdate
		want []string
	}{
		{name: "all sent", list: sent, want: nil},
		{name: "written during sync", list: []review.PendingUpdate{update("w1", 3), update("w2", 2), update("w3", 4)}, want: []string{"w3"}},
		{name: "rated again during sync", list: []review.PendingUpdate{update("w1", 1), update("w2", 2)}, want: []string{"w1"}},
		{name: "empty", list: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pending.Prune(tt.list, sent)
			if len(got) != len(tt.want) {
				t.Fatalf("Prune() = %+v, want ids %v", got, tt.want)
			}
			for i, id := range tt.want {
				if got[i].VocabularyID != id {
					t.Errorf("got[%d] = %q, want %q", i, got[i].VocabularyID, id)
				}
			}
		})
	}
}

func TestSame(t *testing.T) {
	t.Parallel()

	d1, d2 := 5.1, 5.1
	a := update("w1", 3)
	a.Difficulty = &d1
	b := update("w1", 3)
	b.Difficulty = &d2
	if !pending.Same(a, b) {
		t.Error("equal values behind different pointers are not the same")
	}
	b.Difficulty = nil
	if pending.Same(a, b) {
		t.Error("nil and set difficulty reported the same")
	}
	if pending.Same(update("w1", 3), update("w2", 3)) {
		t.Error("different ids reported the same")
	}
}
