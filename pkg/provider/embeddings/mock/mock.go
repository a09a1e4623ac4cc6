// Package mock provides a test double for embeddings.Provider.
//
// When no result is configured the mock derives a deterministic vector from
// the text, so equal texts embed equally and similarity search is testable.
package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a configurable embeddings.Provider.
type Provider struct {
	mu    sync.Mutex
	texts []string

	// Dims is returned by Dimensions. Default: 4.
	Dims int

	// Vectors maps text to a fixed vector.
	Vectors map[string][]float32

	// EmbedErr is returned by Embed and EmbedBatch when non-nil.
	EmbedErr error
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims <= 0 {
		return 4
	}
	return p.Dims
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = append(p.texts, texts...)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := p.Vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = p.hashVector(t)
	}
	return out, nil
}

// Texts returns every text embedded so far.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

// Reset clears recorded texts.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = nil
}

func (p *Provider) hashVector(text string) []float32 {
	n := p.Dimensions()
	v := make([]float32, n)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum64()
	for i := range v {
		v[i] = float32((sum>>(uint(i)*8))&0xff)/255 + 0.01
	}
	return v
}
