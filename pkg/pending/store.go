// Package pending defines the Store interface for the durable, user-scoped
// buffer of review outcomes that have not yet been synced to the persistence
// backend.
//
// A Store holds one insertion-ordered list per user. Writing an update for a
// vocabulary id that is already present replaces the earlier entry in place
// ("latest wins"), so a list never holds two entries for the same id.
//
// Backends live in sub-packages:
//
//   - sqlite: a local database file (the default)
//   - postgres: a shared PostgreSQL database
//   - redis: a shared Redis instance
//
// Implementations must be safe for concurrent use and must survive process
// restarts.
package pending

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// KeyPrefix namespaces every user's list in key-value backends.
const KeyPrefix = "reviewSession.pendingUpdates."

// Key returns the namespaced storage key for userID.
func Key(userID string) string { return KeyPrefix + userID }

// Store is the abstraction over any pending-update backend.
type Store interface {
	// Load returns all pending updates for userID in insertion order. A user
	// with no updates yields an empty, non-nil slice.
	Load(ctx context.Context, userID string) ([]review.PendingUpdate, error)

	// Upsert merges u into userID's list, replacing any entry with the same
	// vocabulary id, and returns the resulting list.
	Upsert(ctx context.Context, userID string, u review.PendingUpdate) ([]review.PendingUpdate, error)

	// Remove deletes the entries of sent that are still unchanged in
	// userID's list. An entry replaced by a later Upsert stays pending.
	Remove(ctx context.Context, userID string, sent []review.PendingUpdate) error

	// Clear removes every pending update for userID.
	Clear(ctx context.Context, userID string) error
}

// Merge applies latest-wins semantics: when list already holds an entry for
// u.VocabularyID it is replaced in place, otherwise u is appended. list is not
// modified.
func Merge(list []review.PendingUpdate, u review.PendingUpdate) []review.PendingUpdate {
	out := make([]review.PendingUpdate, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.VocabularyID == u.VocabularyID {
			if !replaced {
				out = append(out, u)
				replaced = true
			}
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, u)
	}
	return out
}

// Same reports whether a and b are the same write: equal vocabulary ids and
// equal encoded payloads. Updates that cannot be encoded are never the same.
func Same(a, b review.PendingUpdate) bool {
	if a.VocabularyID != b.VocabularyID {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Prune returns list without the entries that are [Same] as an entry of
// sent, keeping the order of the rest. list is not modified.
func Prune(list, sent []review.PendingUpdate) []review.PendingUpdate {
	byID := make(map[string]review.PendingUpdate, len(sent))
	for _, u := range sent {
		byID[u.VocabularyID] = u
	}
	out := make([]review.PendingUpdate, 0, len(list))
	for _, u := range list {
		if s, ok := byID[u.VocabularyID]; ok && Same(s, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}
