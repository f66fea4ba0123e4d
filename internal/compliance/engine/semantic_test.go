package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearlane/compliance-engine/internal/compliance/engine"
	"github.com/clearlane/compliance-engine/internal/compliance/rules"
	"github.com/clearlane/compliance-engine/pkg/models"
)

type fakeProvider struct {
	textVec []float64
	ruleVec []float64
	err     error
}

func (p *fakeProvider) EmbedText(_ context.Context, _ string) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.textVec, nil
}

func (p *fakeProvider) RuleEmbedding(_ context.Context, _ uuid.UUID) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.ruleVec, nil
}

func semanticRule(threshold float64, patterns ...string) *rules.Rule {
	return newRule(models.RuleTypeSemantic, "high", rules.Logic{
		Semantic: &rules.SemanticLogic{
			Patterns:            patterns,
			SimilarityThreshold: threshold,
		},
	})
}

func textInput(text string) *engine.Input {
	in := transactionInput(nil)
	in.Subject = models.TextSubject(text)
	in.NormalizedText = text
	return in
}

func TestSemanticEvaluatorCosineMatch(t *testing.T) {
	provider := &fakeProvider{
		textVec: []float64{1, 0, 0},
		ruleVec: []float64{1, 0, 0},
	}
	ev := engine.NewSemanticEvaluator(provider, time.Second, zap.NewNop())

	out, err := ev.Evaluate(context.Background(), semanticRule(0.9), textInput("transfer funds offshore"))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.InDelta(t, 1.0, out.Evidence["similarity"], 1e-9)
}

func TestSemanticEvaluatorBelowThreshold(t *testing.T) {
	// Orthogonal vectors: similarity zero.
	provider := &fakeProvider{
		textVec: []float64{1, 0},
		ruleVec: []float64{0, 1},
	}
	ev := engine.NewSemanticEvaluator(provider, time.Second, zap.NewNop())

	out, err := ev.Evaluate(context.Background(), semanticRule(0.5), textInput("hello world"))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestSemanticEvaluatorProviderFailureFallsBackToLiteral(t *testing.T) {
	provider := &fakeProvider{err: errors.New("embedding service down")}
	ev := engine.NewSemanticEvaluator(provider, time.Second, zap.NewNop())

	rule := semanticRule(0.75, "money laundering")
	out, err := ev.Evaluate(context.Background(), rule, textInput("tips on money laundering"))
	require.NoError(t, err)
	assert.True(t, out.Matched)
	assert.Equal(t, true, out.Evidence["fallback"])

	out, err = ev.Evaluate(context.Background(), rule, textInput("perfectly innocent text"))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestSemanticEvaluatorNilProviderUsesLiteral(t *testing.T) {
	ev := engine.NewSemanticEvaluator(nil, time.Second, zap.NewNop())

	out, err := ev.Evaluate(context.Background(), semanticRule(0.75, "sanctions evasion"), textInput("discussing sanctions evasion routes"))
	require.NoError(t, err)
	assert.True(t, out.Matched)
}

func TestSemanticEvaluatorFuzzyFallback(t *testing.T) {
	ev := engine.NewSemanticEvaluator(nil, time.Second, zap.NewNop())

	// One edit away from an 10-letter pattern clears the 0.85 similarity bar.
	out, err := ev.Evaluate(context.Background(), semanticRule(0.75, "laundering"), textInput("big launderin scheme"))
	require.NoError(t, err)
	assert.True(t, out.Matched)

	// A distant token does not.
	out, err = ev.Evaluate(context.Background(), semanticRule(0.75, "laundering"), textInput("lawn care advice"))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}

func TestSemanticEvaluatorEmptyText(t *testing.T) {
	ev := engine.NewSemanticEvaluator(nil, time.Second, zap.NewNop())

	out, err := ev.Evaluate(context.Background(), semanticRule(0.75, "anything"), textInput(""))
	require.NoError(t, err)
	assert.False(t, out.Matched)
}
