// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding is the boundary to embedding services: an OpenAI-compatible
// HTTP backend, a Gemini backend, a two-level vector cache, and the similarity
// math used by relevance scoring.
package embedding

import (
	"context"
	"errors"
	"math"
)

// DefaultDimensions is the vector size of text-embedding-3-small.
const DefaultDimensions = 1536

// ErrEmbedding marks a failed embedding request.
var ErrEmbedding = errors.New("embedding failed")

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Cosine returns the cosine similarity of a and b. It returns 0 when the
// lengths differ or either vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Remap maps a cosine similarity from [-1, 1] onto [0, 1].
func Remap(cos float64) float64 {
	return (cos + 1) / 2
}

// IsZero reports whether v is empty or all zeros.
func IsZero(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
