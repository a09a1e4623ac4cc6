// Package capture turns a word the learner met in a video into a saved
// vocabulary entry. [Service.Define] asks a completion model for the
// definition fields and [Service.Save] validates and stores the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/observe"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/persistence"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

// ErrInvalid wraps every input validation failure.
var ErrInvalid = errors.New("capture: invalid input")

const systemPrompt = `You write flashcards for an English learner who saves words while watching videos.
Given a word or phrase and the sentence it appeared in, answer with JSON only:
{"definition":"meaning in this context, one short sentence",
"realLifeDef":"how the word is used in everyday conversation, or empty if the same",
"example":"a new natural example sentence",
"exampleTrans":"a plain-English paraphrase of the example"}`

// DefineRequest is the word to explain.
type DefineRequest struct {
	Word            string `json:"word" validate:"required,max=100"`
	SurroundingText string `json:"surroundingText" validate:"max=2000"`
	VideoTitle      string `json:"videoTitle" validate:"max=300"`
}

// Definition holds the model-written flashcard fields.
type Definition struct {
	Definition   string `json:"definition" validate:"required"`
	RealLifeDef  string `json:"realLifeDef"`
	Example      string `json:"example"`
	ExampleTrans string `json:"exampleTrans"`
}

// Service defines and saves vocabulary.
type Service struct {
	llm         llm.Provider
	backend     persistence.Backend
	temperature float64
	validate    *validator.Validate
}

// Option configures a [Service].
type Option func(*Service)

// WithTemperature sets the sampling temperature. Default 0.3.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// New creates a Service. model may be nil, in which case Define fails.
func New(model llm.Provider, backend persistence.Backend, opts ...Option) *Service {
	s := &Service{
		llm:         model,
		backend:     backend,
		temperature: 0.3,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Define asks the model for the flashcard fields of req.Word.
func (s *Service) Define(ctx context.Context, req DefineRequest) (Definition, error) {
	req.Word = strings.TrimSpace(req.Word)
	req.SurroundingText = strings.TrimSpace(req.SurroundingText)
	if err := s.validate.Struct(req); err != nil {
		return Definition{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if s.llm == nil {
		return Definition{}, errors.New("capture: no definition model configured")
	}

	ctx, span := observe.StartSpan(ctx, "capture.define")
	defer span.End()

	var b strings.Builder
	fmt.Fprintf(&b, "Word: %s\n", req.Word)
	if req.SurroundingText != "" {
		fmt.Fprintf(&b, "Sentence: %s\n", req.SurroundingText)
	}
	if req.VideoTitle != "" {
		fmt.Fprintf(&b, "Video: %s\n", req.VideoTitle)
	}

	var def Definition
	err := llm.CompleteJSON(ctx, s.llm, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		Temperature:  s.temperature,
	}, &def)
	if err != nil {
		span.RecordError(err)
		return Definition{}, fmt.Errorf("capture: define %q: %w", req.Word, err)
	}
	def.Definition = strings.TrimSpace(def.Definition)
	if err := s.validate.Struct(def); err != nil {
		return Definition{}, fmt.Errorf("capture: define %q: model returned no definition", req.Word)
	}
	return def, nil
}

// Save validates in and stores it. An empty UserID means
// [persistence.DefaultUserID].
func (s *Service) Save(ctx context.Context, in persistence.VocabularyInput) (persistence.SavedVocabulary, error) {
	in.Text = strings.TrimSpace(in.Text)
	in.Definition = strings.TrimSpace(in.Definition)
	if in.UserID == "" {
		in.UserID = persistence.DefaultUserID
	}
	if err := s.validate.Struct(in); err != nil {
		return persistence.SavedVocabulary{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	saved, err := s.backend.SaveVocabulary(ctx, in)
	if err != nil {
		return persistence.SavedVocabulary{}, fmt.Errorf("capture: save %q: %w", in.Text, err)
	}
	observe.Logger(ctx).Info("capture: vocabulary saved", "user_id", in.UserID, "id", saved.ID)
	return saved, nil
}
