// Package judge defines the Provider interface for scene-rating backends.
//
// A judge reads the dialogue of a finished role-play scene and returns one
// recall rating per target word. Two implementations exist: httpjudge calls
// the standalone rating service, llmjudge prompts a completion model
// directly.
package judge

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Word is one target word as presented to the judge.
type Word struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Definition  string `json:"definition"`
	RealLifeDef string `json:"realLifeDef"`
}

// WordsFromItems converts deck items into judge words, preserving order.
func WordsFromItems(items []review.VocabularyItem) []Word {
	out := make([]Word, len(items))
	for i, it := range items {
		out[i] = Word{ID: it.ID, Text: it.Text, Definition: it.Definition, RealLifeDef: it.RealLifeDef}
	}
	return out
}

// Provider rates the target words of one scene.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// RateScene returns ratings in the order the judge produced them. An
	// error means the whole scene could not be judged.
	RateScene(ctx context.Context, evidence string, words []Word) ([]review.SceneRating, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every rating for a vocabulary id and a 1..4 score.
func Validate(ratings []review.SceneRating) error {
	for i := range ratings {
		if err := validate.Struct(ratings[i]); err != nil {
			return fmt.Errorf("judge: rating %d: %w", i, err)
		}
	}
	return nil
}
