package ticket

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragdesk/internal/answer"
)

func TestLLMClassifier_Classify(t *testing.T) {
	gen := &answer.FakeGenerator{Responses: []string{`{"category": "shipping", "confidence": 0.85}`}}
	c := NewLLMClassifier(gen, nil)

	result, err := c.Classify(context.Background(), "my package never arrived")
	require.NoError(t, err)

	assert.Equal(t, "shipping", result.Category)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)

	req := gen.Requests[0]
	assert.True(t, req.JSON, "classifier must request a JSON response")
	assert.Contains(t, req.User, "my package never arrived")
	assert.Contains(t, req.User, strings.Join(DefaultCategories, ", "))
}

func TestLLMClassifier_UnknownCategoryFallsBack(t *testing.T) {
	gen := &answer.FakeGenerator{Responses: []string{`{"category": "space travel", "confidence": 0.4}`}}
	c := NewLLMClassifier(gen, nil)

	result, err := c.Classify(context.Background(), "weird request")
	require.NoError(t, err)
	assert.Equal(t, "other", result.Category)
}

func TestLLMClassifier_MalformedResponse(t *testing.T) {
	gen := &answer.FakeGenerator{Responses: []string{"not json at all"}}
	c := NewLLMClassifier(gen, nil)

	_, err := c.Classify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrClassification)
}

func TestLLMClassifier_GenerationFailure(t *testing.T) {
	gen := &answer.FakeGenerator{Err: answer.ErrGeneration}
	c := NewLLMClassifier(gen, nil)

	_, err := c.Classify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrClassification)
}
