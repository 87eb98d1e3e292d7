package indexer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/ragdesk/internal/chunker"
	"github.com/bull/ragdesk/internal/document"
	"github.com/bull/ragdesk/internal/embedding"
	"github.com/bull/ragdesk/internal/index"
)

type failingRunner struct{}

func (failingRunner) Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return nil, errors.New("pdftotext not installed")
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestPipeline(t *testing.T, dim int) (*Pipeline, *index.Index) {
	t.Helper()
	ch, err := chunker.New(50, 10)
	require.NoError(t, err)
	idx := index.New(dim, index.MetricCosine)
	loader := document.NewLoader(document.WithCommandRunner(failingRunner{}))
	return NewPipeline(loader, ch, embedding.NewFake(dim), idx, slog.Default(), WithWorkers(2)), idx
}

func TestPipeline_IndexAll(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "refunds.txt", "Refunds are issued within five business days of approval.")
	writeDoc(t, dir, "shipping.md", "# Shipping\n\nStandard shipping takes three to five days.")
	writeDoc(t, dir, "notes.log", "ignored, unsupported extension")

	p, idx := newTestPipeline(t, 8)
	result, err := p.IndexAll(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Empty(t, result.FailedDocs)
	assert.Equal(t, result.TotalChunks, idx.Len())
	assert.Greater(t, idx.Len(), 0)
}

func TestPipeline_IndexAll_FailedDocReported(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "guide.txt", "Restart the device before contacting support.")
	writeDoc(t, dir, "manual.pdf", "%PDF-1.4 fake")

	p, idx := newTestPipeline(t, 8)
	result, err := p.IndexAll(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalDocs)
	assert.Equal(t, 1, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 1)
	assert.Contains(t, result.FailedDocs[0].Path, "manual.pdf")
	assert.Greater(t, idx.Len(), 0, "good documents still indexed")
}

func TestPipeline_IndexAll_ReplacesIndex(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "old.txt", "Original content that will disappear.")

	p, idx := newTestPipeline(t, 8)
	_, err := p.IndexAll(context.Background(), dir)
	require.NoError(t, err)
	firstLen := idx.Len()
	require.Greater(t, firstLen, 0)

	require.NoError(t, os.Remove(filepath.Join(dir, "old.txt")))
	writeDoc(t, dir, "new.txt", "Replacement content.")

	result, err := p.IndexAll(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulDocs)
	assert.Equal(t, result.TotalChunks, idx.Len(), "old entries compacted away")
}

func TestPipeline_IndexIncremental_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "faq.txt", "Contact support via the help portal.")

	p, idx := newTestPipeline(t, 8)
	first, err := p.IndexIncremental(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SuccessfulDocs)
	assert.Equal(t, 0, first.SkippedDocs)

	second, err := p.IndexIncremental(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SuccessfulDocs)
	assert.Equal(t, 1, second.SkippedDocs)
	assert.Equal(t, first.TotalChunks, idx.Len())
}

func TestPipeline_IndexIncremental_ReplacesChangedSource(t *testing.T) {
	dir := t.TempDir()
	path := writeDoc(t, dir, "policy.txt", "Returns accepted within 30 days.")

	p, idx := newTestPipeline(t, 8)
	ctx := context.Background()
	_, err := p.IndexIncremental(ctx, dir)
	require.NoError(t, err)

	oldDocs := idx.DocumentsBySource(path)
	require.Len(t, oldDocs, 1)

	writeDoc(t, dir, "policy.txt", "Returns accepted within 60 days.")
	result, err := p.IndexIncremental(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulDocs)

	newDocs := idx.DocumentsBySource(path)
	require.Len(t, newDocs, 1)
	assert.NotEqual(t, oldDocs[0], newDocs[0])
	assert.False(t, idx.HasDocument(oldDocs[0]), "stale document tombstoned")
}
