package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bull/ragdesk/internal/document"
)

func testDoc(text string) *document.Document {
	return &document.Document{
		ID:          "doc1",
		SourceURI:   "test.txt",
		RawText:     text,
		ContentHash: "doc1",
		MIMEType:    "text/plain",
	}
}

// numberedWords produces "w0 w1 w2 ..." with n tokens.
func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := []struct {
		name         string
		max, overlap int
	}{
		{"overlap equals max", 10, 10},
		{"overlap exceeds max", 10, 15},
		{"negative overlap", 10, -1},
		{"zero max", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.max, tc.overlap)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New(%d, %d): expected ErrInvalidConfig, got %v", tc.max, tc.overlap, err)
			}
		})
	}
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := testDoc("only five tokens right here")
	chunks := c.Chunk(doc)

	if len(chunks) != 1 {
		t.Fatalf("expected exactly 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != doc.RawText {
		t.Errorf("chunk text: got %q", chunks[0].Text)
	}
	if chunks[0].Start != 0 || chunks[0].End != len(doc.RawText) {
		t.Errorf("span: got [%d, %d), want [0, %d)", chunks[0].Start, chunks[0].End, len(doc.RawText))
	}
}

func TestChunk_EmptyDocument(t *testing.T) {
	c, err := New(10, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if chunks := c.Chunk(testDoc("   \n  ")); len(chunks) != 0 {
		t.Errorf("expected no chunks for whitespace-only document, got %d", len(chunks))
	}
}

func TestChunk_WindowStartsAndOverlap(t *testing.T) {
	const max, overlap = 10, 3
	c, err := New(max, overlap)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := testDoc(numberedWords(25))
	chunks := c.Chunk(doc)

	step := max - overlap
	for i, ch := range chunks {
		if ch.Sequence != i {
			t.Errorf("chunk %d: sequence %d", i, ch.Sequence)
		}
		words := strings.Fields(ch.Text)
		wantFirst := fmt.Sprintf("w%d", i*step)
		if words[0] != wantFirst {
			t.Errorf("chunk %d: first token %q, want %q", i, words[0], wantFirst)
		}
		if len(words) > max {
			t.Errorf("chunk %d: %d tokens exceeds max %d", i, len(words), max)
		}
		if len(words) == 0 {
			t.Errorf("chunk %d: empty", i)
		}
		// Consecutive chunks share exactly `overlap` tokens.
		if i > 0 {
			prev := strings.Fields(chunks[i-1].Text)
			if len(prev) == max {
				shared := prev[len(prev)-overlap:]
				if strings.Join(shared, " ") != strings.Join(words[:overlap], " ") {
					t.Errorf("chunk %d: overlap mismatch", i)
				}
			}
		}
	}

	// Union of chunks covers every token.
	last := chunks[len(chunks)-1]
	lastWords := strings.Fields(last.Text)
	if lastWords[len(lastWords)-1] != "w24" {
		t.Errorf("final chunk must end at last token, got %q", lastWords[len(lastWords)-1])
	}
}

func TestChunk_SpansCoverDocument(t *testing.T) {
	c, err := New(4, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := testDoc(numberedWords(11))
	chunks := c.Chunk(doc)

	if chunks[0].Start != 0 {
		t.Errorf("first span must start at 0, got %d", chunks[0].Start)
	}
	if chunks[len(chunks)-1].End != len(doc.RawText) {
		t.Errorf("final span must end at %d, got %d", len(doc.RawText), chunks[len(chunks)-1].End)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start > chunks[i-1].End {
			t.Errorf("gap between chunk %d and %d: [%d, %d)", i-1, i, chunks[i-1].End, chunks[i].Start)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c, err := New(5, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := testDoc(numberedWords(17))
	a := c.Chunk(doc)
	b := c.Chunk(doc)

	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
	if a[0].ID != "doc1:0" {
		t.Errorf("chunk ID: got %q, want doc1:0", a[0].ID)
	}
}
