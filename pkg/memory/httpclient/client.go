// Package httpclient implements memory.Service against the hosted memory
// service.
//
// Bootstrap responses are cached per user for a short time and dropped on
// every bucket write, so planning a second session right after a sync still
// sees the fresh profile.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
)

var _ memory.Service = (*Client)(nil)

// DefaultBaseURL is where the memory service listens in local development.
const DefaultBaseURL = "http://localhost:3003"

// DefaultCacheTTL is how long a bootstrap response is reused.
const DefaultCacheTTL = 2 * time.Minute

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithCacheTTL sets the bootstrap cache lifetime. Zero or negative disables
// caching.
func WithCacheTTL(d time.Duration) Option { return func(cl *Client) { cl.ttl = d } }

// Client talks to the memory service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	cache   *cache.Cache
}

// New creates a Client for baseURL. An empty baseURL uses [DefaultBaseURL].
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		ttl:     DefaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}
	if c.ttl > 0 {
		c.cache = cache.New(c.ttl, 2*c.ttl)
	}
	return c
}

type bootstrapResponse struct {
	UserID string                     `json:"userId"`
	Memory map[string]json.RawMessage `json:"memory"`
}

// Bootstrap implements memory.Service.
func (c *Client) Bootstrap(ctx context.Context, userID string) (memory.Profile, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(userID); ok {
			return v.(memory.Profile), nil
		}
	}

	q := url.Values{"userId": {userID}}
	var out bootstrapResponse
	if err := c.do(ctx, http.MethodGet, "/memory/bootstrap?"+q.Encode(), nil, &out, "bootstrap"); err != nil {
		return memory.Profile{}, err
	}
	p, err := memory.ProfileFromBuckets(out.Memory)
	if err != nil {
		return memory.Profile{}, err
	}
	if c.cache != nil {
		c.cache.Set(userID, p, cache.DefaultExpiration)
	}
	return p, nil
}

// PutBucket implements memory.Service.
func (c *Client) PutBucket(ctx context.Context, userID, bucket string, value any) error {
	if !memory.ValidBucket(bucket) {
		return fmt.Errorf("memory: unknown bucket %q", bucket)
	}
	if c.cache != nil {
		c.cache.Delete(userID)
	}
	body := map[string]any{"userId": userID, "bucket": bucket, "value": value}
	return c.do(ctx, http.MethodPost, "/memory/update", body, nil, "update")
}

// AddSemantic implements memory.Service.
func (c *Client) AddSemantic(ctx context.Context, userID, text string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	body := map[string]any{"userId": userID, "text": text, "metadata": metadata}
	return c.do(ctx, http.MethodPost, "/memory/semantic/add", body, nil, "semantic add")
}

// SearchSemantic implements memory.Service.
func (c *Client) SearchSemantic(ctx context.Context, userID, query string, k int) ([]memory.Hit, error) {
	if k <= 0 {
		k = 5
	}
	q := url.Values{"userId": {userID}, "query": {query}, "k": {strconv.Itoa(k)}}
	var out struct {
		Results []memory.Hit `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/memory/semantic/search?"+q.Encode(), nil, &out, "search"); err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []memory.Hit{}
	}
	return out.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, op string) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("memory %s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("memory %s: build request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("memory %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("memory %s failed: %d", op, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("memory %s: decode: %w", op, err)
	}
	return nil
}
