// Package memory defines the long-term learner memory consumed by the scene
// planner and written back after every synced session.
//
// Memory is split into three buckets, each stored as one JSON document per
// user:
//
//   - semantic: durable preferences (interests, CEFR level, reply style)
//   - episodic: what happened in recent sessions (difficult words, scenes)
//   - procedural: tutoring rules the learner asked for
//
// A semantic index of free-text summaries sits alongside the buckets and is
// searched for planner hints at session start.
//
// Implementations live in sub-packages: httpclient talks to the hosted
// memory service, postgres stores buckets and vectors directly.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Bucket names.
const (
	BucketSemantic   = "semantic"
	BucketEpisodic   = "episodic"
	BucketProcedural = "procedural"
)

// Buckets lists every valid bucket name.
var Buckets = []string{BucketSemantic, BucketEpisodic, BucketProcedural}

// ValidBucket reports whether name is one of [Buckets].
func ValidBucket(name string) bool { return slices.Contains(Buckets, name) }

// MaxEpisodes caps the number of session episodes kept in episodic memory.
const MaxEpisodes = 10

// Service is the abstraction over a long-term memory backend.
//
// Implementations must be safe for concurrent use.
type Service interface {
	// Bootstrap returns the user's profile. Buckets that were never written
	// are filled from [DefaultProfile].
	Bootstrap(ctx context.Context, userID string) (Profile, error)

	// PutBucket replaces one bucket with value, which must marshal to JSON.
	PutBucket(ctx context.Context, userID, bucket string, value any) error

	// AddSemantic indexes text for later similarity search. metadata is
	// stored alongside; the userId key is always set by the backend.
	AddSemantic(ctx context.Context, userID, text string, metadata map[string]string) error

	// SearchSemantic returns up to k of the user's indexed texts closest to
	// query, most similar first.
	SearchSemantic(ctx context.Context, userID, query string, k int) ([]Hit, error)
}

// Hit is one semantic search result.
type Hit struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ── Profile ──────────────────────────────────────────────────────────────────

// Profile is the full per-user memory document.
type Profile struct {
	Semantic   Semantic   `json:"semantic"`
	Episodic   Episodic   `json:"episodic"`
	Procedural Procedural `json:"procedural"`
}

// Semantic holds durable learner preferences.
type Semantic struct {
	Interests []string `json:"interests"`
	Level     string   `json:"level"`
	Style     string   `json:"style"`
}

// Episodic summarises recent sessions.
type Episodic struct {
	LastScenes       []string  `json:"lastScenes"`
	DifficultWords   []string  `json:"difficultWords"`
	TypicalMistakes  []string  `json:"typicalMistakes"`
	SlangSuggestions []Slang   `json:"slangSuggestions"`
	Sessions         []Episode `json:"sessions,omitempty"`
}

// Slang is a phrase the planner suggested in a scene.
type Slang struct {
	SceneID string `json:"sceneId"`
	Phrase  string `json:"phrase"`
	Example string `json:"example,omitempty"`
}

// Episode is the marker appended for every synced session.
type Episode struct {
	At             time.Time `json:"at"`
	SessionID      string    `json:"sessionId,omitempty"`
	Reviewed       int       `json:"reviewed"`
	DifficultWords []string  `json:"difficultWords"`
}

// Procedural holds tutoring rules.
type Procedural struct {
	Rules []string `json:"rules"`
}

// DefaultProfile returns the profile of a learner with no history.
func DefaultProfile() Profile {
	return Profile{
		Semantic: Semantic{Interests: []string{}, Level: "B1", Style: "short"},
		Episodic: Episodic{
			LastScenes:       []string{},
			DifficultWords:   []string{},
			TypicalMistakes:  []string{},
			SlangSuggestions: []Slang{},
		},
		Procedural: Procedural{Rules: []string{}},
	}
}

// AddEpisode appends ep, keeping at most [MaxEpisodes] sessions. Its
// difficult words move to the front of DifficultWords without duplicates,
// and scenes are prepended to LastScenes. Both lists are capped to what the
// kept sessions can account for.
func (e *Episodic) AddEpisode(ep Episode, scenes []string) {
	e.Sessions = append(e.Sessions, ep)
	if n := len(e.Sessions); n > MaxEpisodes {
		e.Sessions = slices.Clone(e.Sessions[n-MaxEpisodes:])
	}
	e.DifficultWords = frontUnique(ep.DifficultWords, e.DifficultWords, 5*MaxEpisodes)
	e.LastScenes = frontUnique(scenes, e.LastScenes, 3*MaxEpisodes)
}

func frontUnique(head, tail []string, limit int) []string {
	out := make([]string, 0, len(head)+len(tail))
	for _, s := range slices.Concat(head, tail) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ── Raw bucket decoding ──────────────────────────────────────────────────────

// ProfileFromBuckets decodes stored bucket documents over [DefaultProfile].
// A missing or JSON-null bucket keeps its defaults.
func ProfileFromBuckets(raw map[string]json.RawMessage) (Profile, error) {
	p := DefaultProfile()
	targets := map[string]any{
		BucketSemantic:   &p.Semantic,
		BucketEpisodic:   &p.Episodic,
		BucketProcedural: &p.Procedural,
	}
	for name, target := range targets {
		doc := raw[name]
		if len(doc) == 0 || string(doc) == "null" {
			continue
		}
		if err := json.Unmarshal(doc, target); err != nil {
			return Profile{}, fmt.Errorf("memory: decode %s bucket: %w", name, err)
		}
	}
	return p, nil
}
