// Package httpjudge implements judge.Provider against the scene-rating
// service (POST /api/rate-scene).
package httpjudge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/judge"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ judge.Provider = (*Provider)(nil)

// DefaultBaseURL is where the rating service listens in local development.
const DefaultBaseURL = "http://localhost:3002"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider calls the remote scene-rating endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New creates a Provider for baseURL. An empty baseURL uses [DefaultBaseURL].
func New(baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type rateRequest struct {
	SceneEvidence string       `json:"sceneEvidence"`
	WordsInScene  []judge.Word `json:"wordsInScene"`
}

type rateResponse struct {
	Ratings []review.SceneRating `json:"ratings"`
}

// RateScene implements judge.Provider.
func (p *Provider) RateScene(ctx context.Context, evidence string, words []judge.Word) ([]review.SceneRating, error) {
	if words == nil {
		words = []judge.Word{}
	}
	body, err := json.Marshal(rateRequest{SceneEvidence: evidence, WordsInScene: words})
	if err != nil {
		return nil, fmt.Errorf("httpjudge: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/rate-scene", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpjudge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpjudge: rate-scene: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("httpjudge: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rate-scene failed: %s", strings.TrimSpace(string(raw)))
	}

	var out rateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("httpjudge: decode: %w", err)
	}
	if err := judge.Validate(out.Ratings); err != nil {
		return nil, err
	}
	return out.Ratings, nil
}
