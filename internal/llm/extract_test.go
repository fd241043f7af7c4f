// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\": [1, 2]}\n```", `{"a": [1, 2]}`},
		{"surrounding prose", "Sure! Here it is: {\"a\": {\"b\": 2}} Hope that helps.", `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "x}y{z"} trailing }`, `{"a": "x}y{z"}`},
		{"escaped quote inside string", `{"a": "say \"}\" now"}`, `{"a": "say \"}\" now"}`},
		{"first of two objects", `{"a":1} {"b":2}`, `{"a":1}`},
		{"skips unbalanced opener", `note { unclosed and then {"ok": true}`, `{"ok": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractObject(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractObjectMissing(t *testing.T) {
	for _, in := range []string{"", "no json here", "{ never closed", "[1, 2]"} {
		_, err := ExtractObject(in)
		assert.ErrorIs(t, err, ErrNoPayload, "input %q", in)
	}
}

func TestExtractArray(t *testing.T) {
	got, err := ExtractArray("Themes:\n```\n[\"A [beta]\", \"B\"]\n```")
	require.NoError(t, err)
	assert.Equal(t, `["A [beta]", "B"]`, got)
}

type sample struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("missing name")
	}
	if s.Tags == nil {
		return fmt.Errorf("missing tags")
	}
	return nil
}

func TestDecodeObject(t *testing.T) {
	var s sample
	require.NoError(t, DecodeObject("test", "```json\n{\"name\":\"x\",\"tags\":[\"a\"]}\n```", &s))
	assert.Equal(t, "x", s.Name)
	assert.Equal(t, []string{"a"}, s.Tags)
}

func TestDecodeObjectSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no payload", "I cannot help with that."},
		{"wrong element type", `{"name":"x","tags":[1,2]}`},
		{"missing field", `{"name":"x"}`},
		{"empty required", `{"name":"","tags":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s sample
			err := DecodeObject("expand", tt.raw, &s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaValidation))

			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "expand", se.Stage)
			assert.Equal(t, tt.raw, se.Raw)
		})
	}
}

func TestDecodeStrings(t *testing.T) {
	got, err := DecodeStrings("themes", `Here: ["AI Safety", "  ", "Policy"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"AI Safety", "Policy"}, got)

	_, err = DecodeStrings("themes", `[1, 2]`)
	assert.ErrorIs(t, err, ErrSchemaValidation)

	_, err = DecodeStrings("themes", `nothing`)
	assert.ErrorIs(t, err, ErrSchemaValidation)
}

func TestFirstFloat(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"0.85", 0.85, true},
		{"Score: .7", 0.7, true},
		{"1", 1, true},
		{"1.0 (very relevant)", 1, true},
		{"0", 0, true},
		{"relevance 10/10", 1, true},
		{"none", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := FirstFloat(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
