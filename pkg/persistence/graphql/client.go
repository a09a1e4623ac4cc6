// Package graphql implements persistence.Backend against the vocabulary
// backend's GraphQL endpoint.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ persistence.Backend = (*Client)(nil)

// DefaultEndpoint is the backend's GraphQL URL in local development.
const DefaultEndpoint = "http://localhost:8080/graphql"

const (
	startReviewSessionMutation = `
mutation StartReviewSession($userId: String!) {
  startReviewSession(userId: $userId) {
    id text definition example exampleTrans realLifeDef surroundingText videoTitle
    fsrsCard { difficulty stability dueDate state lastReview reps }
  }
}`

	saveReviewSessionMutation = `
mutation SaveReviewSession($updates: [CardUpdateInput!]!) {
  saveReviewSession(updates: $updates) { success savedCount message }
}`

	saveVocabularyMutation = `
mutation SaveVocabulary($input: VocabularyInput!) {
  saveVocabulary(input: $input) { id text definition createdAt }
}`
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// Client sends GraphQL requests over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Client. An empty endpoint uses [DefaultEndpoint].
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{endpoint: endpoint, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DueWords implements persistence.Backend.
func (c *Client) DueWords(ctx context.Context, userID string) ([]review.VocabularyItem, error) {
	var data struct {
		StartReviewSession []entry `json:"startReviewSession"`
	}
	if err := c.do(ctx, startReviewSessionMutation, map[string]any{"userId": userID}, &data); err != nil {
		return nil, fmt.Errorf("persistence: start review session: %w", err)
	}
	out := make([]review.VocabularyItem, len(data.StartReviewSession))
	for i, e := range data.StartReviewSession {
		out[i] = e.item()
	}
	return out, nil
}

// SaveReviewSession implements persistence.Backend.
func (c *Client) SaveReviewSession(ctx context.Context, updates []review.CardUpdate) (review.SaveResult, error) {
	if updates == nil {
		updates = []review.CardUpdate{}
	}
	var data struct {
		SaveReviewSession review.SaveResult `json:"saveReviewSession"`
	}
	if err := c.do(ctx, saveReviewSessionMutation, map[string]any{"updates": updates}, &data); err != nil {
		return review.SaveResult{}, fmt.Errorf("persistence: save review session: %w", err)
	}
	return data.SaveReviewSession, nil
}

// SaveVocabulary implements persistence.Backend.
func (c *Client) SaveVocabulary(ctx context.Context, in persistence.VocabularyInput) (persistence.SavedVocabulary, error) {
	if in.UserID == "" {
		in.UserID = persistence.DefaultUserID
	}
	var data struct {
		SaveVocabulary struct {
			ID         string    `json:"id"`
			Text       string    `json:"text"`
			Definition string    `json:"definition"`
			CreatedAt  localTime `json:"createdAt"`
		} `json:"saveVocabulary"`
	}
	if err := c.do(ctx, saveVocabularyMutation, map[string]any{"input": in}, &data); err != nil {
		return persistence.SavedVocabulary{}, fmt.Errorf("persistence: save vocabulary: %w", err)
	}
	s := data.SaveVocabulary
	return persistence.SavedVocabulary{ID: s.ID, Text: s.Text, Definition: s.Definition, CreatedAt: s.CreatedAt.Time}, nil
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do posts one operation. The first GraphQL error message becomes the
// returned error.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("decode: %w", err)
	}
	if len(gr.Errors) > 0 {
		return errors.New(gr.Errors[0].Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return errors.New("empty data")
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// ── wire types ───────────────────────────────────────────────────────────────

type entry struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	Definition      string `json:"definition"`
	Example         string `json:"example"`
	ExampleTrans    string `json:"exampleTrans"`
	RealLifeDef     string `json:"realLifeDef"`
	SurroundingText string `json:"surroundingText"`
	VideoTitle      string `json:"videoTitle"`
	FSRSCard        *struct {
		Difficulty *float64   `json:"difficulty"`
		Stability  *float64   `json:"stability"`
		DueDate    localTime  `json:"dueDate"`
		State      string     `json:"state"`
		LastReview *localTime `json:"lastReview"`
		Reps       int        `json:"reps"`
	} `json:"fsrsCard"`
}

func (e entry) item() review.VocabularyItem {
	it := review.VocabularyItem{
		ID:              e.ID,
		Text:            e.Text,
		Definition:      e.Definition,
		Example:         e.Example,
		ExampleTrans:    e.ExampleTrans,
		RealLifeDef:     e.RealLifeDef,
		SurroundingText: e.SurroundingText,
		VideoTitle:      e.VideoTitle,
		Card:            review.SchedulerCard{State: review.StateLearning},
	}
	if c := e.FSRSCard; c != nil {
		it.Card = review.SchedulerCard{
			Difficulty: c.Difficulty,
			Stability:  c.Stability,
			DueDate:    c.DueDate.Time,
			State:      review.ParseCardState(c.State),
			Reps:       c.Reps,
		}
		if c.LastReview != nil && !c.LastReview.IsZero() {
			t := c.LastReview.Time
			it.Card.LastReview = &t
		}
	}
	return it
}

// localTime accepts RFC 3339 timestamps and the backend's zone-less
// ISO local date-times, which are taken as UTC.
type localTime struct{ time.Time }

var localLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"}

func (t *localTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range localLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised time %q", s)
}
