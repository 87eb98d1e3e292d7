// Package embedding maps text chunks to fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding indicates a provider or network failure while embedding.
// Callers decide the retry policy; the OpenAI provider already retries
// rate limits internally before surfacing this.
var ErrEmbedding = errors.New("embedding failed")

// Provider maps text to fixed-dimension vectors. The dimension is fixed at
// construction; vectors from different dimensions never mix in one index.
// Must be deterministic for a given model version. Model upgrades change
// vectors, for which an index rebuild is the migration path.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector dimension.
	Dimension() int
}
