// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the boundary to generative text services. It defines the
// Generator strategy, the Claude and Gemini backends, and the helpers that
// pull structured payloads out of free-form model output.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"
)

// Request is one generative call.
type Request struct {
	Prompt      string
	Temperature float64

	// MaxTokens caps the response length; 0 lets the backend choose.
	MaxTokens int
}

// Generator abstracts a generative text service so tests can supply a mock.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrSchemaValidation marks model output that could not be parsed into the
// required shape.
var ErrSchemaValidation = errors.New("schema validation failed")

// SchemaError describes a schema failure for one stage. Raw holds the model
// output for diagnostics.
type SchemaError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, ErrSchemaValidation, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSchemaValidation) true for every SchemaError.
func (e *SchemaError) Is(target error) bool { return target == ErrSchemaValidation }

// Render executes a prompt template with data.
func Render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
