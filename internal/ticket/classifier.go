package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bull/ragdesk/internal/answer"
)

// DefaultCategories is the category set the classifier chooses from.
var DefaultCategories = []string{
	"billing",
	"shipping",
	"product_defect",
	"account",
	"how_to",
	"other",
}

// Classification is the accepted category for a ticket. Once stored on the
// ticket it is never recomputed: the model is non-deterministic, so caching
// per ticket id is what makes categorization stable.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classifier assigns a category to ticket content.
type Classifier interface {
	Classify(ctx context.Context, content string) (*Classification, error)
}

// LLMClassifier classifies tickets with the generation model using a JSON
// response format.
type LLMClassifier struct {
	gen        answer.Generator
	categories []string
}

// NewLLMClassifier creates a classifier over the given category set.
// An empty set selects DefaultCategories.
func NewLLMClassifier(gen answer.Generator, categories []string) *LLMClassifier {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return &LLMClassifier{gen: gen, categories: categories}
}

func (c *LLMClassifier) Classify(ctx context.Context, content string) (*Classification, error) {
	prompt := fmt.Sprintf(`Classify this support ticket into exactly one category.

Categories: %s

Ticket:
%s

Respond in JSON format:
{"category": "one of the categories above", "confidence": 0.0}`,
		strings.Join(c.categories, ", "), content)

	raw, err := c.gen.Complete(ctx, answer.Request{
		System: "You are a support ticket triage assistant.",
		User:   prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}

	var result Classification
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrClassification, err)
	}

	// An out-of-set answer falls back to the catch-all rather than failing
	// the ticket.
	if !c.known(result.Category) {
		result.Category = "other"
	}
	return &result, nil
}

func (c *LLMClassifier) known(category string) bool {
	for _, known := range c.categories {
		if category == known {
			return true
		}
	}
	return false
}
