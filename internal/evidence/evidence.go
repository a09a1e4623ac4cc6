// Package evidence slices the running conversation log into the dialogue
// relevant to one word or one scene.
//
// The same algorithm serves both flows; only the slicing boundary and the
// speaker labels differ. All functions are pure.
package evidence

import (
	"strings"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// NoStart marks an unknown start offset. Extraction then falls back to the
// last MaxTurns dialogue turns.
const NoStart = -1

// Labels are the speaker prefixes used when rendering lines.
type Labels struct {
	User      string
	Assistant string
	Sep       string
}

var (
	// SceneLabels render scene evidence for the judge.
	SceneLabels = Labels{User: "USER", Assistant: "TEACHER", Sep: ": "}

	// WordLabels render compact per-word evidence.
	WordLabels = Labels{User: "U", Assistant: "A", Sep: ": "}
)

// Options control a single extraction.
type Options struct {
	// Start is the history offset where the relevant conversation begins, or
	// [NoStart].
	Start int

	// MaxTurns caps the dialogue turns returned when Start is unknown. Zero
	// means no cap.
	MaxTurns int

	// Labels selects the speaker prefixes. Zero value uses [SceneLabels].
	Labels Labels

	// MinLineLen drops rendered lines whose length is at most this value.
	MinLineLen int
}

// Extract returns the dialogue-only turns selected by opts, rendered as
// role-labelled lines. Tool, system and function-call items are skipped.
func Extract(history []review.Turn, opts Options) []string {
	labels := opts.Labels
	if labels == (Labels{}) {
		labels = SceneLabels
	}

	window := history
	if opts.Start >= 0 {
		if opts.Start >= len(history) {
			return nil
		}
		window = history[opts.Start:]
	}

	dialogue := make([]review.Turn, 0, len(window))
	for _, t := range window {
		if !t.IsDialogue() || strings.TrimSpace(t.Text) == "" {
			continue
		}
		dialogue = append(dialogue, t)
	}
	if opts.Start < 0 && opts.MaxTurns > 0 && len(dialogue) > opts.MaxTurns {
		dialogue = dialogue[len(dialogue)-opts.MaxTurns:]
	}

	lines := make([]string, 0, len(dialogue))
	for _, t := range dialogue {
		label := labels.User
		if t.Role == review.RoleAssistant {
			label = labels.Assistant
		}
		line := label + labels.Sep + strings.TrimSpace(t.Text)
		if len(line) <= opts.MinLineLen {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Render joins the extracted lines with newlines.
func Render(history []review.Turn, opts Options) string {
	return strings.Join(Extract(history, opts), "\n")
}

// Scene renders the evidence for a scene that started at start.
func Scene(history []review.Turn, start int) string {
	return Render(history, Options{Start: start, Labels: SceneLabels})
}

// RecentWord renders the last maxTurns dialogue turns as per-word evidence.
// It returns nil when the history holds no usable dialogue.
func RecentWord(history []review.Turn, maxTurns int) *string {
	lines := Extract(history, Options{
		Start:      NoStart,
		MaxTurns:   maxTurns,
		Labels:     WordLabels,
		MinLineLen: 3,
	})
	if len(lines) == 0 {
		return nil
	}
	s := strings.Join(lines, "\n")
	return &s
}

// ActiveWord renders the dialogue since a word review started, keeping at
// most maxTurns of the latest lines. When start is [NoStart] the last
// maxTurns turns of the whole history are used.
func ActiveWord(history []review.Turn, start, maxTurns int) string {
	lines := Extract(history, Options{Start: start, MaxTurns: maxTurns, Labels: SceneLabels})
	if maxTurns > 0 && len(lines) > maxTurns {
		lines = lines[len(lines)-maxTurns:]
	}
	return strings.Join(lines, "\n")
}
