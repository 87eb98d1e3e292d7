// Package chunker splits normalized documents into overlapping token windows
// sized for embedding-model limits.
package chunker

import (
	"errors"
	"fmt"
	"strconv"
	"unicode"

	"github.com/bull/ragdesk/internal/document"
)

// DefaultMaxTokens is the default window size in tokens.
const DefaultMaxTokens = 200

// DefaultOverlapTokens is the default overlap between consecutive windows.
const DefaultOverlapTokens = 40

// ErrInvalidConfig indicates the overlap is not smaller than the window size.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunk is a bounded text window derived from a document, the unit of
// embedding and retrieval. Sequence defines a total order within the
// document, used for citation context expansion.
type Chunk struct {
	ID         string // Deterministic: "<documentID>:<sequence>"
	DocumentID string
	Sequence   int
	Text       string
	Start      int // Byte offset of the window in the normalized text
	End        int // Byte offset one past the window's last token
}

// Chunker produces deterministic sliding windows over whitespace tokens:
// chunk i starts at token i*(maxTokens-overlapTokens).
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a Chunker. overlapTokens must be smaller than maxTokens and
// both non-negative, otherwise ErrInvalidConfig is returned.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens %d must be positive", ErrInvalidConfig, maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlapTokens, maxTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// span marks a token's byte range in the source text.
type span struct {
	start, end int
}

// tokenize returns the byte spans of whitespace-delimited tokens.
func tokenize(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// Chunk splits the document into windows covering every token. The final
// chunk may be shorter than maxTokens but is never empty; a document shorter
// than maxTokens yields exactly one chunk. An empty document yields none.
func (c *Chunker) Chunk(doc *document.Document) []Chunk {
	tokens := tokenize(doc.RawText)
	if len(tokens) == 0 {
		return nil
	}

	step := c.maxTokens - c.overlapTokens
	var chunks []Chunk
	for start, seq := 0, 0; start < len(tokens); start, seq = start+step, seq+1 {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		byteStart := tokens[start].start
		byteEnd := tokens[end-1].end
		if seq == 0 {
			byteStart = 0
		}
		if end == len(tokens) {
			byteEnd = len(doc.RawText)
		}

		chunks = append(chunks, Chunk{
			ID:         doc.ID + ":" + strconv.Itoa(seq),
			DocumentID: doc.ID,
			Sequence:   seq,
			Text:       doc.RawText[tokens[start].start:tokens[end-1].end],
			Start:      byteStart,
			End:        byteEnd,
		})

		if end == len(tokens) {
			break
		}
	}
	return chunks
}
