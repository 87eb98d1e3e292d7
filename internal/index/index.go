// Package index stores chunk vectors with metadata and answers
// k-nearest-neighbor queries under cosine or inner-product similarity.
//
// Mutations are copy-on-write: Insert, Remove and Rebuild build a fresh
// snapshot and swap it atomically, so a Search in flight always sees one
// consistent version of the index and never a torn read. The index is the
// sole owner of vectors after build.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Metric selects the similarity function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// Meta is the retrieval metadata carried alongside each vector.
type Meta struct {
	DocumentID string `json:"document_id"`
	Sequence   int    `json:"sequence"`
	Text       string `json:"text"`
	Source     string `json:"source"`
}

// Entry is a (vector, chunk id, metadata) triple stored in the index.
type Entry struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
	Meta    Meta      `json:"meta"`
}

// Hit is one search result: a chunk id with its similarity score.
type Hit struct {
	ChunkID string
	Score   float64
}

// record wraps an entry with its tombstone flag. Tombstoned records stay in
// the snapshot until a rebuild compacts them away.
type record struct {
	Entry   Entry
	Deleted bool
}

// snapshot is one immutable version of the index.
type snapshot struct {
	records map[string]record
	byDoc   map[string]map[int]string // document id -> sequence -> chunk id
	live    int
}

// Index is an in-process vector index with snapshot-isolated reads.
type Index struct {
	dimension int
	metric    Metric

	mu   sync.Mutex // serializes Insert/Remove/Rebuild
	snap atomic.Pointer[snapshot]
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int, metric Metric) *Index {
	idx := &Index{dimension: dimension, metric: metric}
	idx.snap.Store(emptySnapshot())
	return idx
}

func emptySnapshot() *snapshot {
	return &snapshot{
		records: make(map[string]record),
		byDoc:   make(map[string]map[int]string),
	}
}

// Dimension returns the configured vector dimension.
func (idx *Index) Dimension() int { return idx.dimension }

// Metric returns the configured similarity metric.
func (idx *Index) Metric() Metric { return idx.metric }

// Len returns the number of live (non-tombstoned) entries.
func (idx *Index) Len() int { return idx.snap.Load().live }

// Insert appends entries to the live index. A duplicate chunk id replaces
// the prior entry (last-write-wins), which supports incremental re-indexing
// without a full rebuild. Mutually exclusive with Remove and Rebuild, never
// with Search.
func (idx *Index) Insert(entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != idx.dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), idx.dimension)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := idx.clone()
	for _, e := range entries {
		next.put(e)
	}
	idx.snap.Store(next)
	return nil
}

// Remove tombstones the given chunk ids. Unknown ids are ignored.
// Physical compaction is deferred to Rebuild.
func (idx *Index) Remove(chunkIDs []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := idx.clone()
	for _, id := range chunkIDs {
		rec, ok := next.records[id]
		if !ok || rec.Deleted {
			continue
		}
		next.unlink(rec.Entry)
		rec.Deleted = true
		next.records[id] = rec
		next.live--
	}
	idx.snap.Store(next)
}

// RemoveDocument tombstones every live entry belonging to a document.
// Returns the removed chunk ids.
func (idx *Index) RemoveDocument(documentID string) []string {
	snap := idx.snap.Load()
	seqs, ok := snap.byDoc[documentID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(seqs))
	for _, id := range seqs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	idx.Remove(ids)
	return ids
}

// Rebuild atomically replaces the whole index with the given entries.
// The old snapshot stays servable until the new one is fully built, giving
// read availability during the rebuild. Tombstones are compacted away.
func (idx *Index) Rebuild(entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != idx.dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), idx.dimension)
		}
	}

	next := emptySnapshot()
	for _, e := range entries {
		next.put(e)
	}

	idx.mu.Lock()
	idx.snap.Store(next)
	idx.mu.Unlock()
	return nil
}

// Search returns the k nearest live entries ordered by descending score,
// ties broken by ascending chunk id for determinism. Returns ErrEmptyIndex
// when no live entries exist.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), idx.dimension)
	}

	snap := idx.snap.Load()
	if snap.live == 0 {
		return nil, ErrEmptyIndex
	}

	hits := make([]Hit, 0, snap.live)
	for id, rec := range snap.records {
		if rec.Deleted {
			continue
		}
		hits = append(hits, Hit{ChunkID: id, Score: idx.score(query, rec.Entry.Vector)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Get returns the live entry for a chunk id.
func (idx *Index) Get(chunkID string) (Entry, bool) {
	rec, ok := idx.snap.Load().records[chunkID]
	if !ok || rec.Deleted {
		return Entry{}, false
	}
	return rec.Entry, true
}

// ByDocument returns the live entry at a given sequence position within a
// document. Used for citation context expansion.
func (idx *Index) ByDocument(documentID string, sequence int) (Entry, bool) {
	snap := idx.snap.Load()
	seqs, ok := snap.byDoc[documentID]
	if !ok {
		return Entry{}, false
	}
	id, ok := seqs[sequence]
	if !ok {
		return Entry{}, false
	}
	return snap.records[id].Entry, true
}

// HasDocument reports whether any live entry belongs to the document.
func (idx *Index) HasDocument(documentID string) bool {
	seqs, ok := idx.snap.Load().byDoc[documentID]
	return ok && len(seqs) > 0
}

// DocumentsBySource returns the ids of live documents whose entries were
// indexed from the given source, sorted. Document ids are content hashes, so
// a changed source shows up under a new document id; this lookup lets an
// incremental pass find and retire the stale one.
func (idx *Index) DocumentsBySource(source string) []string {
	snap := idx.snap.Load()
	seen := make(map[string]struct{})
	for _, rec := range snap.records {
		if rec.Deleted || rec.Entry.Meta.Source != source {
			continue
		}
		seen[rec.Entry.Meta.DocumentID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// entries returns all records including tombstones, for persistence.
func (idx *Index) entries() []record {
	snap := idx.snap.Load()
	records := make([]record, 0, len(snap.records))
	for _, rec := range snap.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Entry.ChunkID < records[j].Entry.ChunkID
	})
	return records
}

// clone copies the current snapshot so mutations never touch a version a
// concurrent Search may be reading.
func (idx *Index) clone() *snapshot {
	cur := idx.snap.Load()
	next := &snapshot{
		records: make(map[string]record, len(cur.records)),
		byDoc:   make(map[string]map[int]string, len(cur.byDoc)),
		live:    cur.live,
	}
	for id, rec := range cur.records {
		next.records[id] = rec
	}
	for doc, seqs := range cur.byDoc {
		copied := make(map[int]string, len(seqs))
		for seq, id := range seqs {
			copied[seq] = id
		}
		next.byDoc[doc] = copied
	}
	return next
}

// put inserts an entry into the snapshot with last-write-wins semantics.
func (s *snapshot) put(e Entry) {
	if prev, ok := s.records[e.ChunkID]; ok {
		if !prev.Deleted {
			s.unlink(prev.Entry)
			s.live--
		}
	}
	s.records[e.ChunkID] = record{Entry: e}
	s.link(e)
	s.live++
}

func (s *snapshot) link(e Entry) {
	seqs, ok := s.byDoc[e.Meta.DocumentID]
	if !ok {
		seqs = make(map[int]string)
		s.byDoc[e.Meta.DocumentID] = seqs
	}
	seqs[e.Meta.Sequence] = e.ChunkID
}

func (s *snapshot) unlink(e Entry) {
	if seqs, ok := s.byDoc[e.Meta.DocumentID]; ok {
		if seqs[e.Meta.Sequence] == e.ChunkID {
			delete(seqs, e.Meta.Sequence)
		}
		if len(seqs) == 0 {
			delete(s.byDoc, e.Meta.DocumentID)
		}
	}
}

// score computes similarity between two vectors under the configured metric.
func (idx *Index) score(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if idx.metric == MetricDot {
		return dot
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
