// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoPayload is returned when no balanced JSON block is present.
var ErrNoPayload = errors.New("no JSON payload in model output")

var fenceRe = regexp.MustCompile("```(?:json|JSON)?\\n?")

// floatRe matches the first score-like number: ".7", "0.85", "1", "1.0".
var floatRe = regexp.MustCompile(`0?\.\d+|[01]\.?\d*`)

// Validator is implemented by response schemas that check their own shape.
type Validator interface {
	Validate() error
}

// ExtractObject returns the first balanced {...} block in text, ignoring
// code fences and braces inside JSON strings.
func ExtractObject(text string) (string, error) {
	return extractBalanced(text, '{', '}')
}

// ExtractArray returns the first balanced [...] block in text.
func ExtractArray(text string) (string, error) {
	return extractBalanced(text, '[', ']')
}

func extractBalanced(text string, open, close byte) (string, error) {
	text = strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))

	start := strings.IndexByte(text, open)
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
		// Unbalanced from this opener; try the next one.
		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoPayload
}

// DecodeObject extracts the first JSON object from raw model output, decodes
// it into dst, and runs dst.Validate. Every failure is a *SchemaError.
func DecodeObject(stage, raw string, dst Validator) error {
	obj, err := ExtractObject(raw)
	if err != nil {
		return &SchemaError{Stage: stage, Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(obj), dst); err != nil {
		return &SchemaError{Stage: stage, Raw: raw, Err: err}
	}
	if err := dst.Validate(); err != nil {
		return &SchemaError{Stage: stage, Raw: raw, Err: err}
	}
	return nil
}

// DecodeStrings extracts the first JSON array from raw model output and
// decodes it as a list of strings, dropping blank entries.
func DecodeStrings(stage, raw string) ([]string, error) {
	arr, err := ExtractArray(raw)
	if err != nil {
		return nil, &SchemaError{Stage: stage, Raw: raw, Err: err}
	}
	var values []string
	if err := json.Unmarshal([]byte(arr), &values); err != nil {
		return nil, &SchemaError{Stage: stage, Raw: raw, Err: err}
	}
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// FirstFloat parses the first score-like number in text and clamps it to
// [0, 1]. It reports false when no number is present.
func FirstFloat(text string) (float64, bool) {
	m := floatRe.FindString(text)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return v, true
}
