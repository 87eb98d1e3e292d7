// Package retriever embeds queries and returns the top-k most relevant
// chunks above a score threshold.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/ragdesk/internal/embedding"
	"github.com/bull/ragdesk/internal/index"
)

// DefaultTopK is the default number of results returned.
const DefaultTopK = 5

// DefaultScoreThreshold is the default minimum similarity for a chunk to be
// considered relevant context.
const DefaultScoreThreshold = 0.4

// Result is one retrieval hit. Ephemeral: produced per query, never persisted.
type Result struct {
	ChunkID string
	Score   float64
	Rank    int
}

// Retriever answers queries against a vector index.
type Retriever struct {
	provider embedding.Provider
	index    *index.Index
	logger   *slog.Logger
}

// New creates a Retriever over the given provider and index.
func New(provider embedding.Provider, idx *index.Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{provider: provider, index: idx, logger: logger}
}

// Index exposes the underlying index for citation context expansion.
func (r *Retriever) Index() *index.Index {
	return r.index
}

// Retrieve embeds the query, searches the index, drops hits below threshold
// and caps the result at k. An empty result is a valid outcome meaning "no
// relevant context", not a failure. Calling twice against an unchanged index
// returns identical ordered results.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := r.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < threshold {
			continue
		}
		results = append(results, Result{
			ChunkID: hit.ChunkID,
			Score:   hit.Score,
			Rank:    len(results) + 1,
		})
	}

	r.logger.Debug("retrieved context",
		"query_len", len(query),
		"hits", len(hits),
		"above_threshold", len(results),
	)
	return results, nil
}
