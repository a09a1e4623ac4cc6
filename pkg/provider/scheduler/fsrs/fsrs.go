// Package fsrs implements scheduler.Provider against an FSRS review service
// reachable over HTTP (POST /review).
package fsrs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/scheduler"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ scheduler.Provider = (*Provider)(nil)

// DefaultBaseURL is where the FSRS service listens in local development.
const DefaultBaseURL = "http://localhost:6060"

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client (and therefore the transport
// timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithClock overrides the time source used to default a missing due date.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider calls the FSRS review endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// New creates a Provider for the service at baseURL. An empty baseURL uses
// [DefaultBaseURL].
func New(baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ── Wire types ────────────────────────────────────────────────────────────────

// wireCard sends a nil difficulty or stability as null, which the service
// reads as a new card.
type wireCard struct {
	Difficulty *float64   `json:"difficulty"`
	Stability  *float64   `json:"stability"`
	Due        time.Time  `json:"due"`
	State      string     `json:"state"`
	LastReview *time.Time `json:"last_review"`
	Step       int        `json:"step"`
}

type reviewRequest struct {
	Card       wireCard  `json:"card"`
	Rating     int       `json:"rating"`
	ReviewTime time.Time `json:"review_time"`
}

type reviewResponse struct {
	Difficulty *float64   `json:"difficulty"`
	Stability  *float64   `json:"stability"`
	Due        time.Time  `json:"due"`
	State      string     `json:"state"`
	LastReview *time.Time `json:"last_review"`
	Step       *int       `json:"step"`
}

// Review implements scheduler.Provider.
func (p *Provider) Review(ctx context.Context, card review.SchedulerCard, rating review.Rating, reviewedAt time.Time) (review.SchedulerCard, error) {
	if !rating.Valid() {
		return review.SchedulerCard{}, fmt.Errorf("fsrs: rating %d out of range 1..4", rating)
	}

	due := card.DueDate
	if due.IsZero() {
		due = p.now()
	}
	state := card.State
	if state == "" {
		state = review.StateLearning
	}
	body, err := json.Marshal(reviewRequest{
		Card: wireCard{
			Difficulty: card.Difficulty,
			Stability:  card.Stability,
			Due:        due.UTC(),
			State:      string(state),
			LastReview: card.LastReview,
			Step:       card.Reps,
		},
		Rating:     int(rating),
		ReviewTime: reviewedAt.UTC(),
	})
	if err != nil {
		return review.SchedulerCard{}, fmt.Errorf("fsrs: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/review", bytes.NewReader(body))
	if err != nil {
		return review.SchedulerCard{}, fmt.Errorf("fsrs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return review.SchedulerCard{}, fmt.Errorf("fsrs: review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return review.SchedulerCard{}, fmt.Errorf("fsrs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var out reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return review.SchedulerCard{}, fmt.Errorf("fsrs: decode response: %w", err)
	}

	reps := card.Reps
	if out.Step != nil {
		reps = *out.Step
	}
	return review.SchedulerCard{
		Difficulty: out.Difficulty,
		Stability:  out.Stability,
		DueDate:    out.Due,
		State:      review.ParseCardState(out.State),
		LastReview: out.LastReview,
		Reps:       reps,
	}, nil
}

// Ping calls the service's /health endpoint.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("fsrs: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fsrs: health: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fsrs: health: status %d", resp.StatusCode)
	}
	return nil
}
