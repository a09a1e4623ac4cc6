package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
)

// MemoryGuard wraps a [memory.Service] and makes every operation non-fatal.
// Failures are logged and replaced by defaults, so a review can start and
// the tutor's memory tools keep answering while the memory backend is down.
// IsDegraded reports whether the most recent operation failed.
//
// All methods are safe for concurrent use.
type MemoryGuard struct {
	svc      memory.Service
	degraded atomic.Bool
}

var _ memory.Service = (*MemoryGuard)(nil)

// NewMemoryGuard creates a [MemoryGuard] wrapping svc.
func NewMemoryGuard(svc memory.Service) *MemoryGuard {
	return &MemoryGuard{svc: svc}
}

func (g *MemoryGuard) track(err error, msg string, attrs ...any) {
	if err == nil {
		g.degraded.Store(false)
		return
	}
	g.degraded.Store(true)
	slog.Warn("memory guard: "+msg, append(attrs, "err", err)...)
}

// Bootstrap returns [memory.DefaultProfile] when the backend fails.
func (g *MemoryGuard) Bootstrap(ctx context.Context, userID string) (memory.Profile, error) {
	p, err := g.svc.Bootstrap(ctx, userID)
	g.track(err, "Bootstrap failed, using default profile", "user_id", userID)
	if err != nil {
		return memory.DefaultProfile(), nil
	}
	return p, nil
}

// PutBucket swallows backend errors.
func (g *MemoryGuard) PutBucket(ctx context.Context, userID, bucket string, value any) error {
	err := g.svc.PutBucket(ctx, userID, bucket, value)
	g.track(err, "PutBucket failed, swallowing error", "user_id", userID, "bucket", bucket)
	return nil
}

// AddSemantic swallows backend errors.
func (g *MemoryGuard) AddSemantic(ctx context.Context, userID, text string, metadata map[string]string) error {
	err := g.svc.AddSemantic(ctx, userID, text, metadata)
	g.track(err, "AddSemantic failed, swallowing error", "user_id", userID)
	return nil
}

// SearchSemantic returns no hits when the backend fails.
func (g *MemoryGuard) SearchSemantic(ctx context.Context, userID, query string, k int) ([]memory.Hit, error) {
	hits, err := g.svc.SearchSemantic(ctx, userID, query, k)
	g.track(err, "SearchSemantic failed, returning empty", "user_id", userID, "k", k)
	if err != nil {
		return []memory.Hit{}, nil
	}
	return hits, nil
}

// IsDegraded reports whether the most recent operation failed.
func (g *MemoryGuard) IsDegraded() bool {
	return g.degraded.Load()
}
