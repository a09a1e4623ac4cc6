// Package mock provides an in-memory test double for pending.Store.
//
// The mock records every call and keeps real latest-wins state so tests can
// assert on both interactions and resulting contents.
//
//	store := &mock.Store{}
//	store.UpsertErr = errors.New("disk full")
//	if got := store.CallCount("Upsert"); got != 1 { … }
package mock

import (
	"context"
	"sync"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ pending.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a configurable in-memory [pending.Store].
type Store struct {
	mu    sync.Mutex
	calls []Call
	data  map[string][]review.PendingUpdate

	// LoadErr is returned by Load when non-nil.
	LoadErr error

	// UpsertErr is returned by Upsert when non-nil. The store is not modified.
	UpsertErr error

	// RemoveErr is returned by Remove when non-nil. The store is not modified.
	RemoveErr error

	// ClearErr is returned by Clear when non-nil. The store is not modified.
	ClearErr error
}

// Seed replaces userID's list.
func (m *Store) Seed(userID string, list []review.PendingUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]review.PendingUpdate)
	}
	m.data[userID] = append([]review.PendingUpdate(nil), list...)
}

// Load implements pending.Store.
func (m *Store) Load(_ context.Context, userID string) ([]review.PendingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Load", Args: []any{userID}})
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return append([]review.PendingUpdate{}, m.data[userID]...), nil
}

// Upsert implements pending.Store.
func (m *Store) Upsert(_ context.Context, userID string, u review.PendingUpdate) ([]review.PendingUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Upsert", Args: []any{userID, u}})
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	if m.data == nil {
		m.data = make(map[string][]review.PendingUpdate)
	}
	m.data[userID] = pending.Merge(m.data[userID], u)
	return append([]review.PendingUpdate{}, m.data[userID]...), nil
}

// Remove implements pending.Store.
func (m *Store) Remove(_ context.Context, userID string, sent []review.PendingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Remove", Args: []any{userID, sent}})
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	if rest := pending.Prune(m.data[userID], sent); len(rest) > 0 {
		m.data[userID] = rest
	} else {
		delete(m.data, userID)
	}
	return nil
}

// Clear implements pending.Store.
func (m *Store) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Clear", Args: []any{userID}})
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.data, userID)
	return nil
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
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

// Reset clears recorded calls and stored data.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.data = nil
}
