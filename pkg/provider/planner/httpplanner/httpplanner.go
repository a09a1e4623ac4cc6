// Package httpplanner implements planner.Provider against the role-play
// planning service (POST /api/roleplay/plan).
package httpplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ planner.Provider = (*Provider)(nil)

// DefaultBaseURL is where the planning service listens in local development.
const DefaultBaseURL = "http://localhost:3000"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider calls the remote planner. Plans take a while to generate, so the
// default client timeout is generous.
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
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan implements planner.Provider.
func (p *Provider) Plan(ctx context.Context, in planner.Request) (review.Plan, error) {
	if in.DueWords == nil {
		in.DueWords = []review.VocabularyItem{}
	}
	if in.SemanticHints == nil {
		in.SemanticHints = []memory.Hit{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return review.Plan{}, fmt.Errorf("httpplanner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/roleplay/plan", bytes.NewReader(body))
	if err != nil {
		return review.Plan{}, fmt.Errorf("httpplanner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return review.Plan{}, fmt.Errorf("httpplanner: plan: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return review.Plan{}, fmt.Errorf("httpplanner: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return review.Plan{}, fmt.Errorf("roleplay plan failed: %d %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var plan review.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return review.Plan{}, fmt.Errorf("httpplanner: decode: %w", err)
	}
	return plan, nil
}
