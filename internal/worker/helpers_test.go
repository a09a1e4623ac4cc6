package worker_test

import (
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/rating"
	pendingmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/pending/mock"
	schedmock "github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler/mock"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

func newRatingService(t *testing.T, deck *review.Deck) *rating.Service {
	t.Helper()
	return rating.NewService(rating.Config{
		UserID:    "alice",
		Deck:      deck,
		Scheduler: &schedmock.Provider{},
		Store:     &pendingmock.Store{},
	})
}
