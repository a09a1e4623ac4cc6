package judge_test

import (
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ratings []review.SceneRating
		wantErr bool
	}{
		{"empty", nil, false},
		{"valid", []review.SceneRating{{VocabularyID: "w1", Rating: 1}, {VocabularyID: "w2", Rating: 4}}, false},
		{"missing id", []review.SceneRating{{Rating: 3}}, true},
		{"rating too low", []review.SceneRating{{VocabularyID: "w1", Rating: 0}}, true},
		{"rating too high", []review.SceneRating{{VocabularyID: "w1", Rating: 5}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := judge.Validate(tt.ratings); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWordsFromItems(t *testing.T) {
	t.Parallel()

	words := judge.WordsFromItems([]review.VocabularyItem{
		{ID: "w1", Text: "exhausted", Definition: "very tired", RealLifeDef: "wiped out", Example: "ignored"},
	})
	want := judge.Word{ID: "w1", Text: "exhausted", Definition: "very tired", RealLifeDef: "wiped out"}
	if len(words) != 1 || words[0] != want {
		t.Errorf("WordsFromItems() = %+v, want [%+v]", words, want)
	}
}
