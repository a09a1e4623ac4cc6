// Package embeddings defines the Provider interface for text-embedding
// backends used by the semantic memory index.
//
// Session summaries are embedded when they are written and search queries
// are embedded when planner hints are looked up. Both sides must use the
// same Provider configuration so their vectors share one space.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to fixed-length float32 vectors.
type Provider interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input, in input order. On error no
	// partial result is returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this provider returns. The
	// pgvector column is created with this size.
	Dimensions() int
}
