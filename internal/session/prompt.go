package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/s2s"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

// Mode selects which review flow the tutor is told to run.
type Mode string

const (
	// ModeRolePlay plays the planned scenes.
	ModeRolePlay Mode = "role-play"

	// ModeWords reviews due words one at a time. Used when no plan exists.
	ModeWords Mode = "words"

	// ModeFreeTalk is conversation practice without due words.
	ModeFreeTalk Mode = "free-talk"
)

const basePrompt = `You are a friendly and patient English vocabulary tutor talking with the learner by voice.

Rules:
- Never say ids out loud.
- Keep each reply under 2–3 sentences and end with a question.
- Correct at most 1–2 mistakes at a time, then give one improved sentence.
- If the learner gets stuck, offer 2–3 natural phrases, one casual option included, and let them try again.`

const rolePlayFlow = `## Flow
1. Call get_next_scene. If it reports done, thank the learner and wrap up.
2. Call start_scene with the scene's sceneId, then open the scene in character with its starter line.
3. Steer the conversation so the learner uses every target word naturally. Do not list the words.
4. Once they have, call mark_scene_done and then request_scene_rating. Rating happens in the background; go straight to step 1.
Tools are the only way to move between scenes. Do not call one out of order.`

const wordFlow = `## Flow
1. Call get_next_word. If it reports done, thank the learner and wrap up.
2. Call start_word_review for that word. In one sentence, mention the video it came from.
3. Ask what the word means in the video, then explain its real-life meaning if it differs.
4. Ask for one sentence in the video context and one in everyday life.
5. When the learner says "rate me", call get_active_word_evidence, judge their recall, and call submit_word_rating with 1 (again) to 4 (easy).
6. Go back to step 1.`

const freeTalkFlow = `## Flow
The learner has no words due today. Ask what they want to practise (small talk, interviews, travel, daily life). If they are unsure, offer 2–3 topics and let them pick. Do not claim specific news facts.`

// ModeFor picks the flow for a session.
func ModeFor(plan *review.Plan, words int) Mode {
	switch {
	case words == 0:
		return ModeFreeTalk
	case plan == nil || len(plan.Scenes) == 0:
		return ModeWords
	default:
		return ModeRolePlay
	}
}

// Instructions renders the tutor's system prompt. Empty profile sections are
// omitted.
func Instructions(mode Mode, p memory.Profile, plan *review.Plan) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	// ── Learner ──
	var learner []string
	if p.Semantic.Level != "" {
		learner = append(learner, "Level: "+p.Semantic.Level)
	}
	if len(p.Semantic.Interests) > 0 {
		learner = append(learner, "Interests: "+strings.Join(p.Semantic.Interests, ", "))
	}
	if p.Semantic.Style != "" {
		learner = append(learner, "Preferred reply style: "+p.Semantic.Style)
	}
	if len(p.Episodic.DifficultWords) > 0 {
		learner = append(learner, "Recently difficult: "+strings.Join(p.Episodic.DifficultWords, ", "))
	}
	if len(learner) > 0 {
		sb.WriteString("\n\n## Learner\n")
		sb.WriteString(strings.Join(learner, "\n"))
	}

	if len(p.Procedural.Rules) > 0 {
		sb.WriteString("\n\n## The learner asked you to")
		for _, r := range p.Procedural.Rules {
			fmt.Fprintf(&sb, "\n- %s", r)
		}
	}

	// ── Flow ──
	sb.WriteString("\n\n")
	switch mode {
	case ModeRolePlay:
		sb.WriteString(rolePlayFlow)
		fmt.Fprintf(&sb, "\nThere are %d scenes today.", len(plan.Scenes))
	case ModeWords:
		sb.WriteString(wordFlow)
	default:
		sb.WriteString(freeTalkFlow)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// recapItems turns the last n dialogue turns into context for a fresh
// realtime connection, oldest first, followed by a resume note.
func recapItems(history []review.Turn, n int) []s2s.ContextItem {
	var out []s2s.ContextItem
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if t := history[i]; t.IsDialogue() {
			out = append(out, s2s.ContextItem{Role: t.Role, Content: t.Text})
		}
	}
	slices.Reverse(out)
	return append(out, s2s.ContextItem{
		Role:    review.RoleSystem,
		Content: "The connection dropped and was restored. Continue the review exactly where you left off.",
	})
}
