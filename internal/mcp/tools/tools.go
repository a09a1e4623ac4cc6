// Package tools defines the shared [Tool] type used by the built-in tool
// packages. Each sub-package exports a constructor returning a slice of
// [Tool] values ready for registration with the MCP host.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/llm"
)

// Tool is an in-process tool: its model-facing schema and the handler
// invoked when the model calls it.
type Tool struct {
	Definition llm.ToolDefinition

	// Handler executes the tool with JSON-encoded args and returns a
	// JSON-encoded result. Must be safe for concurrent use.
	Handler func(ctx context.Context, args string) (string, error)

	// Timeout bounds one execution. Zero leaves the caller's deadline.
	Timeout time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals args into dst and validates its `validate` struct tags.
// Empty args decode as an empty object.
func Decode(args string, dst any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), dst); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Encode marshals a handler result.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// Object builds a JSON Schema object with the given properties.
func Object(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
