package scene

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a state change is not in the
// transition table.
var ErrInvalidTransition = errors.New("invalid scene transition")

// State is the step of the teach, practice and rate protocol.
type State int

const (
	// NeedScene is the initial state: no scene has been fetched.
	NeedScene State = iota

	// InScene means a scene has been fetched and is being played.
	InScene

	// SceneDone means the tutor finished the role-play but has not yet asked
	// for a rating.
	SceneDone

	// RateScene is the transient state while a finished scene is handed to
	// the rating worker.
	RateScene

	// NextScene is the idle state between two scenes.
	NextScene

	// Done is terminal: the plan is exhausted.
	Done
)

var stateNames = [...]string{
	NeedScene: "NEED_SCENE",
	InScene:   "IN_SCENE",
	SceneDone: "SCENE_DONE",
	RateScene: "RATE_SCENE",
	NextScene: "NEXT_SCENE",
	Done:      "DONE",
}

// String returns the wire tag of s, e.g. "IN_SCENE".
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Idle reports whether a new scene may be fetched in s.
func (s State) Idle() bool { return s == NeedScene || s == NextScene }

// allowed lists the legal successors of every state.
var allowed = map[State][]State{
	NeedScene: {InScene, Done},
	InScene:   {SceneDone},
	SceneDone: {SceneDone, RateScene},
	RateScene: {NextScene},
	NextScene: {InScene, Done},
	Done:      {Done},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("scene: %s → %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// WordStep is the step of the per-word review flow.
type WordStep int

const (
	// WordUnset means the per-word flow has not been initialised.
	WordUnset WordStep = iota

	// NeedWord means the next word may be fetched.
	NeedWord

	// AskVideo means a word was fetched and the tutor is asking about the
	// video it came from.
	AskVideo
)

// String returns the wire tag of w.
func (w WordStep) String() string {
	switch w {
	case NeedWord:
		return "NEED_WORD"
	case AskVideo:
		return "ASK_VIDEO"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (w WordStep) MarshalText() ([]byte, error) { return []byte(w.String()), nil }
