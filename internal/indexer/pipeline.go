// Package indexer orchestrates the build-time pipeline: load documents,
// chunk them, embed the chunks and load the vectors into the index.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bull/ragdesk/internal/chunker"
	"github.com/bull/ragdesk/internal/document"
	"github.com/bull/ragdesk/internal/embedding"
	"github.com/bull/ragdesk/internal/index"
)

// DefaultWorkers bounds concurrent document processing. Embedding calls
// dominate, so the pool is sized for API concurrency, not CPU count.
const DefaultWorkers = 4

// IndexResult contains statistics about an indexing operation.
type IndexResult struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	SkippedDocs    int // unchanged content, incremental runs only
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline orchestrates the full indexing process from loading to the index.
type Pipeline struct {
	loader   *document.Loader
	chunker  *chunker.Chunker
	provider embedding.Provider
	index    *index.Index
	logger   *slog.Logger
	workers  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets the number of concurrent document workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a new indexing pipeline with the given components.
func NewPipeline(
	loader *document.Loader,
	ch *chunker.Chunker,
	provider embedding.Provider,
	idx *index.Index,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		loader:   loader,
		chunker:  ch,
		provider: provider,
		index:    idx,
		logger:   logger,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover walks root and returns the supported document paths, sorted.
func Discover(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || document.DetectMIME(path) == "" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// IndexAll processes every supported document under root and atomically
// replaces the whole index with the result. Readers keep the old index until
// the swap. Documents that fail to load or embed are reported and skipped.
func (p *Pipeline) IndexAll(ctx context.Context, root string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	paths, err := Discover(root)
	if err != nil {
		return nil, err
	}
	result.TotalDocs = len(paths)
	p.logger.Info("starting full indexing", "root", root, "documents", len(paths))

	var mu sync.Mutex
	var entries []index.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, path := range paths {
		g.Go(func() error {
			docEntries, err := p.processDocument(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("failed to process document", "path", path, "error", err)
				result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: path, Reason: err.Error()})
				return nil // keep indexing the rest
			}
			result.SuccessfulDocs++
			result.TotalChunks += len(docEntries)
			entries = append(entries, docEntries...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.index.Rebuild(entries); err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("indexing complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// IndexIncremental processes documents under root, skipping any whose content
// hash is already indexed. When a source file's content changed, the new
// chunks are inserted first and the stale document is tombstoned after, so
// queries in between see at worst both versions, never neither.
func (p *Pipeline) IndexIncremental(ctx context.Context, root string) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	paths, err := Discover(root)
	if err != nil {
		return nil, err
	}
	result.TotalDocs = len(paths)
	p.logger.Info("starting incremental indexing", "root", root, "documents", len(paths))

	for _, path := range paths {
		doc, err := p.loader.Load(ctx, path)
		if err != nil {
			p.logger.Warn("failed to load document", "path", path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: path, Reason: err.Error()})
			continue
		}
		if p.index.HasDocument(doc.ID) {
			result.SkippedDocs++
			p.logger.Debug("document unchanged", "path", path, "document", doc.ID)
			continue
		}
		stale := p.index.DocumentsBySource(doc.SourceURI)

		entries, err := p.embedDocument(ctx, doc)
		if err != nil {
			p.logger.Warn("failed to embed document", "path", path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Path: path, Reason: err.Error()})
			continue
		}
		if err := p.index.Insert(entries); err != nil {
			return nil, fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
		for _, id := range stale {
			p.index.RemoveDocument(id)
		}
		result.SuccessfulDocs++
		result.TotalChunks += len(entries)
		p.logger.Info("indexed document", "path", path, "chunks", len(entries), "replaced", len(stale))
	}

	result.Duration = time.Since(start)
	p.logger.Info("incremental indexing complete",
		"successful", result.SuccessfulDocs,
		"skipped", result.SkippedDocs,
		"failed", len(result.FailedDocs),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// processDocument handles the full pipeline for a single document.
func (p *Pipeline) processDocument(ctx context.Context, path string) ([]index.Entry, error) {
	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return p.embedDocument(ctx, doc)
}

// embedDocument chunks a loaded document, embeds the chunk texts and builds
// index entries.
func (p *Pipeline) embedDocument(ctx context.Context, doc *document.Document) ([]index.Entry, error) {
	chunks := p.chunker.Chunk(doc)
	if len(chunks) == 0 {
		p.logger.Debug("document has no content", "source", doc.SourceURI)
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Meta: index.Meta{
				DocumentID: c.DocumentID,
				Sequence:   c.Sequence,
				Text:       c.Text,
				Source:     doc.SourceURI,
			},
		}
	}
	return entries, nil
}
