// Package document normalizes heterogeneous source documents (plain text,
// markdown, CSV, PDF) into a uniform text-plus-metadata form.
package document

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes an external command and returns its stdout.
// PDF extraction shells out through this so tests can substitute a fake.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Loader converts source files or blobs into Documents.
type Loader struct {
	runner CommandRunner
}

// Option configures the Loader.
type Option func(*Loader)

// WithCommandRunner overrides the external command runner used for PDF
// extraction. Useful for testing.
func WithCommandRunner(r CommandRunner) Option {
	return func(l *Loader) { l.runner = r }
}

// NewLoader creates a Loader with the given options.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{runner: execRunner{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// mimeByExtension maps supported file extensions to mime types.
var mimeByExtension = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".pdf":      "application/pdf",
}

// DetectMIME returns the mime type for a source path, or an empty string if
// the extension is not supported.
func DetectMIME(path string) string {
	return mimeByExtension[strings.ToLower(filepath.Ext(path))]
}

// Load reads a file from disk and normalizes it into a Document.
// Returns ErrUnsupportedFormat for unrecognized extensions and ErrLoad
// (wrapped with the cause) for unreadable or corrupt input.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	mimeType := DetectMIME(path)
	if mimeType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrLoad, path, err)
	}

	return l.LoadBlob(ctx, path, data, mimeType)
}

// LoadBlob normalizes in-memory bytes with a known mime type into a Document.
// The content hash is computed over the source bytes, so loading identical
// bytes always yields the identical Document ID.
func (l *Loader) LoadBlob(ctx context.Context, sourceURI string, data []byte, mimeType string) (*Document, error) {
	var (
		text     string
		headings []string
		err      error
	)

	switch mimeType {
	case "text/plain":
		text = string(data)
	case "text/markdown":
		text, headings, err = normalizeMarkdown(data)
	case "text/csv":
		text, err = normalizeCSV(data)
	case "application/pdf":
		text, err = l.normalizePDF(ctx, sourceURI, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: normalize %s: %v", ErrLoad, sourceURI, err)
	}

	hash := HashBytes(data)
	return &Document{
		ID:          hash,
		SourceURI:   sourceURI,
		RawText:     strings.TrimSpace(text),
		ContentHash: hash,
		MIMEType:    mimeType,
		Headings:    headings,
	}, nil
}

// normalizeCSV flattens CSV records into one comma-joined line per row,
// matching how the support corpus stores product and FAQ rows.
func normalizeCSV(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Ragged rows are tolerated

	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		b.WriteString(strings.Join(record, ", "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// normalizePDF extracts text via pdftotext. The blob is written to a
// temporary file because pdftotext reads from disk.
func (l *Loader) normalizePDF(ctx context.Context, sourceURI string, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "ragdesk-*.pdf")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp: %w", err)
	}
	tmp.Close()

	out, err := l.runner.Run(ctx, "pdftotext", "-layout", tmp.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w", sourceURI, err)
	}
	return string(out), nil
}
