package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bull/ragdesk/internal/index"
	"github.com/bull/ragdesk/internal/retriever"
)

// DefaultContextBudget is the maximum number of context characters included
// in a prompt across all retrieved chunks and their neighbors.
const DefaultContextBudget = 6000

const systemPrompt = "You are a concise support assistant. " +
	"Answer only from the provided context and cite sources. " +
	"If the context does not contain the answer, say so."

// Citation points at a retrieved chunk that backed the answer.
type Citation struct {
	ChunkID string
	Source  string
	Score   float64
}

// Answer is a generated answer with its supporting citations.
// Grounded is false when no retrieved context backed the prompt; consumers
// apply a different confidence policy to such answers.
type Answer struct {
	Text      string
	Citations []Citation
	Grounded  bool
}

// Synthesizer builds augmented prompts from retrieval results and invokes
// the generation model.
type Synthesizer struct {
	gen           Generator
	index         *index.Index
	contextBudget int
	logger        *slog.Logger
}

// Option configures the Synthesizer.
type Option func(*Synthesizer)

// WithContextBudget overrides the prompt context budget in characters.
func WithContextBudget(chars int) Option {
	return func(s *Synthesizer) {
		if chars > 0 {
			s.contextBudget = chars
		}
	}
}

// NewSynthesizer creates a Synthesizer reading chunk text from the index.
func NewSynthesizer(gen Generator, idx *index.Index, logger *slog.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{
		gen:           gen,
		index:         idx,
		contextBudget: DefaultContextBudget,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer generates an answer for the query from the retrieved chunks.
// Chunk texts are concatenated in rank order, each expanded with neighboring
// sequence chunks from the same document up to the context budget. When
// results is empty the model is still invoked, but Grounded is false so the
// caller can flag the answer as unbacked by the corpus.
func (s *Synthesizer) Answer(ctx context.Context, query string, results []retriever.Result) (*Answer, error) {
	grounded := len(results) > 0

	var blocks []string
	var citations []Citation
	if grounded {
		perResult := s.contextBudget / len(results)
		for _, res := range results {
			entry, ok := s.index.Get(res.ChunkID)
			if !ok {
				// The chunk was removed between retrieval and synthesis.
				continue
			}
			blocks = append(blocks, fmt.Sprintf("[%s]\n%s", entry.Meta.Source, s.expand(entry, perResult)))
			citations = append(citations, Citation{
				ChunkID: entry.ChunkID,
				Source:  entry.Meta.Source,
				Score:   res.Score,
			})
		}
	}
	if len(citations) == 0 {
		grounded = false
	}

	contextText := "(no relevant context found)"
	if grounded {
		contextText = strings.Join(blocks, "\n\n")
	}

	user := fmt.Sprintf("Question:\n%s\n\nContext:\n%s", query, contextText)
	text, err := s.gen.Complete(ctx, Request{System: systemPrompt, User: user})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	s.logger.Debug("synthesized answer",
		"grounded", grounded,
		"citations", len(citations),
		"context_chars", len(contextText),
	)
	return &Answer{Text: text, Citations: citations, Grounded: grounded}, nil
}

// expand widens a chunk with its sequence neighbors from the same document,
// alternating before and after, until the budget is spent or the document
// runs out. Sequence order is preserved in the output.
func (s *Synthesizer) expand(entry index.Entry, budget int) string {
	texts := map[int]string{entry.Meta.Sequence: entry.Meta.Text}
	used := len(entry.Meta.Text)
	lo, hi := entry.Meta.Sequence, entry.Meta.Sequence

	for used < budget {
		grew := false
		if prev, ok := s.index.ByDocument(entry.Meta.DocumentID, lo-1); ok && used+len(prev.Meta.Text) <= budget {
			lo--
			texts[lo] = prev.Meta.Text
			used += len(prev.Meta.Text)
			grew = true
		}
		if next, ok := s.index.ByDocument(entry.Meta.DocumentID, hi+1); ok && used+len(next.Meta.Text) <= budget {
			hi++
			texts[hi] = next.Meta.Text
			used += len(next.Meta.Text)
			grew = true
		}
		if !grew {
			break
		}
	}

	parts := make([]string, 0, hi-lo+1)
	for seq := lo; seq <= hi; seq++ {
		parts = append(parts, texts[seq])
	}
	return strings.Join(parts, "\n")
}
