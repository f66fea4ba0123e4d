// Package semantic integrates the external embedding provider used by the
// semantic-similarity evaluator.
package semantic

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Provider computes embeddings for free text and reference embeddings for
// rules. Implementations must respect ctx deadlines; callers treat any error
// as a degraded-provider condition and fall back to literal matching.
type Provider interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	RuleEmbedding(ctx context.Context, ruleID uuid.UUID) ([]float64, error)
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths or
// zero vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
