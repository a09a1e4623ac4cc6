package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newServer(t *testing.T, respond func(req gqlRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(req)))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestDueWords(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(req gqlRequest) string {
		if !strings.Contains(req.Query, "startReviewSession") || req.Variables["userId"] != "alice" {
			t.Errorf("request = %+v", req)
		}
		return `{"data":{"startReviewSession":[
			{"id":"w1","text":"exhausted","definition":"very tired","videoTitle":"Friends",
			 "fsrsCard":{"difficulty":5.1,"stability":2.5,"dueDate":"2025-03-01T09:30:00","state":"review","lastReview":null,"reps":3}},
			{"id":"w2","text":"hang out","fsrsCard":null},
			{"id":"w3","text":"wiped out",
			 "fsrsCard":{"difficulty":null,"stability":null,"dueDate":"2025-03-01T09:30:00","state":"learning","lastReview":null,"reps":0}}
		]}}`
	})

	items, err := c.DueWords(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %+v", items)
	}
	card := items[0].Card
	if card.State != review.StateReview || card.Reps != 3 || card.LastReview != nil {
		t.Errorf("card = %+v", card)
	}
	if card.Difficulty == nil || *card.Difficulty != 5.1 || card.Stability == nil || *card.Stability != 2.5 {
		t.Errorf("difficulty/stability = %v/%v, want 5.1/2.5", card.Difficulty, card.Stability)
	}
	if want := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC); !card.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", card.DueDate, want)
	}
	if items[1].Card.State != review.StateLearning {
		t.Errorf("missing card state = %q, want LEARNING", items[1].Card.State)
	}
	if fresh := items[2].Card; fresh.Difficulty != nil || fresh.Stability != nil {
		t.Errorf("new card difficulty/stability = %v/%v, want nil", fresh.Difficulty, fresh.Stability)
	}
}

func TestSaveReviewSession(t *testing.T) {
	t.Parallel()

	due := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	c := newServer(t, func(req gqlRequest) string {
		updates, _ := req.Variables["updates"].([]any)
		if len(updates) != 1 {
			t.Errorf("updates = %v", req.Variables["updates"])
			return `{"data":null}`
		}
		u := updates[0].(map[string]any)
		if _, ok := u["rating"]; ok {
			t.Error("rating leaked into the remote payload")
		}
		if u["vocabularyId"] != "w1" || u["state"] != "REVIEW" || u["difficulty"] != 4.5 {
			t.Errorf("update = %v", u)
		}
		if v, ok := u["stability"]; !ok || v != nil {
			t.Errorf("stability = %v, want explicit null", v)
		}
		return `{"data":{"saveReviewSession":{"success":true,"savedCount":1,"message":"ok"}}}`
	})

	difficulty := 4.5
	res, err := c.SaveReviewSession(context.Background(), []review.CardUpdate{{
		VocabularyID: "w1", Difficulty: &difficulty, DueDate: due, State: review.StateReview, Reps: 1,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.SavedCount != 1 || res.Err() != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestSaveVocabulary_DefaultUser(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(req gqlRequest) string {
		in := req.Variables["input"].(map[string]any)
		if in["userId"] != persistence.DefaultUserID || in["text"] != "bail" {
			t.Errorf("input = %v", in)
		}
		return `{"data":{"saveVocabulary":{"id":"v9","text":"bail","definition":"leave","createdAt":"2025-03-01T10:00:00.123"}}}`
	})

	saved, err := c.SaveVocabulary(context.Background(), persistence.VocabularyInput{Text: "bail", Definition: "leave"})
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID != "v9" || saved.CreatedAt.Year() != 2025 {
		t.Errorf("saved = %+v", saved)
	}
}

func TestGraphQLError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(gqlRequest) string {
		return `{"errors":[{"message":"Vocabulary not found"},{"message":"second"}],"data":null}`
	})
	_, err := c.DueWords(context.Background(), "alice")
	if err == nil || !strings.HasSuffix(err.Error(), "Vocabulary not found") {
		t.Errorf("err = %v", err)
	}
}

func TestLocalTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: `"2025-03-01T09:30:00Z"`, want: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{in: `"2025-03-01T11:30:00+02:00"`, want: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{in: `"2025-03-01T09:30"`, want: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)},
		{in: `null`},
		{in: `"yesterday"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			var lt localTime
			err := json.Unmarshal([]byte(tt.in), &lt)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil || !lt.Equal(tt.want) {
				t.Errorf("got %v, %v; want %v", lt.Time, err, tt.want)
			}
		})
	}
}
