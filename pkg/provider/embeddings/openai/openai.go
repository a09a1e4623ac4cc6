// Package openai implements embeddings.Provider with the OpenAI embeddings
// API. Any OpenAI-compatible endpoint (Ollama, LM Studio, vLLM) works through
// [WithBaseURL].
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/embeddings"
)

// DefaultModel is used when New is given an empty model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds text through the OpenAI client.
type Provider struct {
	client oai.Client
	model  string
	dims   int
	// reduce is set when the API is asked to shorten vectors to dims.
	reduce bool
}

type options struct {
	baseURL string
	timeout time.Duration
	dims    int
}

// Option configures a Provider.
type Option func(*options)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithDimensions requests vectors of length n. text-embedding-3 models
// shorten their output server-side; other models must already produce n.
func WithDimensions(n int) Option { return func(o *options) { o.dims = n } }

// New creates a Provider. apiKey may be empty only together with a custom
// base URL, since local servers usually do not check keys.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if apiKey == "" && o.baseURL == "" {
		return nil, errors.New("openai embeddings: api key is required without a base url")
	}
	if model == "" {
		model = DefaultModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: o.timeout}))
	}

	p := &Provider{client: oai.NewClient(reqOpts...), model: model, dims: knownDimensions(model)}
	if o.dims > 0 {
		p.reduce = o.dims != p.dims && strings.HasPrefix(model, "text-embedding-3")
		p.dims = o.dims
	}
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dims }

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := p.client.Embeddings.New(ctx, p.params(texts))
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(out) || out[i] != nil {
			return nil, fmt.Errorf("openai embeddings: bad result index %d", d.Index)
		}
		if len(d.Embedding) != p.dims {
			return nil, fmt.Errorf("openai embeddings: vector %d has %d dimensions, want %d", i, len(d.Embedding), p.dims)
		}
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (p *Provider) params(texts []string) oai.EmbeddingNewParams {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if p.reduce {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}
	return params
}

func knownDimensions(model string) int {
	switch {
	case strings.Contains(model, "text-embedding-3-large"):
		return 3072
	case strings.Contains(model, "nomic-embed-text"):
		return 768
	case strings.Contains(model, "mxbai-embed-large"):
		return 1024
	default:
		return 1536
	}
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
