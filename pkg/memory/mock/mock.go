// Package mock provides an in-memory test double for memory.Service.
//
// The mock records every call and keeps real bucket state, so a test can
// run a sync and then assert on the profile a second Bootstrap returns.
//
//	mem := &mock.Service{}
//	mem.PutBucketErr = errors.New("memory down")
//	if got := mem.CallCount("AddSemantic"); got != 1 { … }
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
)

var _ memory.Service = (*Service)(nil)

// Call records the name and non-context arguments of one invocation.
type Call struct {
	Method string
	Args   []any
}

// Service is a configurable in-memory memory.Service.
type Service struct {
	mu      sync.Mutex
	calls   []Call
	buckets map[string]map[string]json.RawMessage
	texts   map[string][]memory.Hit

	// BootstrapErr is returned by Bootstrap when non-nil.
	BootstrapErr error

	// PutBucketErr is returned by PutBucket when non-nil. State is unchanged.
	PutBucketErr error

	// AddSemanticErr is returned by AddSemantic when non-nil.
	AddSemanticErr error

	// SearchResult, when non-nil, is returned by SearchSemantic instead of
	// the substring match over added texts.
	SearchResult []memory.Hit

	// SearchErr is returned by SearchSemantic when non-nil.
	SearchErr error
}

func (m *Service) record(method string, args ...any) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Bootstrap implements memory.Service.
func (m *Service) Bootstrap(_ context.Context, userID string) (memory.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Bootstrap", userID)
	if m.BootstrapErr != nil {
		return memory.Profile{}, m.BootstrapErr
	}
	return memory.ProfileFromBuckets(m.buckets[userID])
}

// PutBucket implements memory.Service.
func (m *Service) PutBucket(_ context.Context, userID, bucket string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("PutBucket", userID, bucket, value)
	if m.PutBucketErr != nil {
		return m.PutBucketErr
	}
	if !memory.ValidBucket(bucket) {
		return fmt.Errorf("mock memory: unknown bucket %q", bucket)
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.buckets == nil {
		m.buckets = make(map[string]map[string]json.RawMessage)
	}
	if m.buckets[userID] == nil {
		m.buckets[userID] = make(map[string]json.RawMessage)
	}
	m.buckets[userID][bucket] = doc
	return nil
}

// AddSemantic implements memory.Service.
func (m *Service) AddSemantic(_ context.Context, userID, text string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AddSemantic", userID, text, metadata)
	if m.AddSemanticErr != nil {
		return m.AddSemanticErr
	}
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]string{}
	}
	meta["userId"] = userID
	if m.texts == nil {
		m.texts = make(map[string][]memory.Hit)
	}
	m.texts[userID] = append(m.texts[userID], memory.Hit{Text: text, Metadata: meta})
	return nil
}

// SearchSemantic implements memory.Service. Without SearchResult it returns
// the user's texts containing any word of query, newest first.
func (m *Service) SearchSemantic(_ context.Context, userID, query string, k int) ([]memory.Hit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SearchSemantic", userID, query, k)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if m.SearchResult != nil {
		return append([]memory.Hit(nil), m.SearchResult...), nil
	}
	out := []memory.Hit{}
	texts := m.texts[userID]
	for i := len(texts) - 1; i >= 0 && len(out) < k; i-- {
		lower := strings.ToLower(texts[i].Text)
		for _, w := range strings.Fields(strings.ToLower(query)) {
			if strings.Contains(lower, strings.Trim(w, ",.")) {
				out = append(out, texts[i])
				break
			}
		}
	}
	return out, nil
}

// Texts returns the semantic texts added for userID.
func (m *Service) Texts(userID string) []memory.Hit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Hit(nil), m.texts[userID]...)
}

// Calls returns a copy of all recorded invocations.
func (m *Service) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many times method was invoked.
func (m *Service) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls. Stored state is kept.
func (m *Service) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
