package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotVersion is the on-disk snapshot format version. Load rejects any
// other version as corrupt.
const SnapshotVersion = 1

// snapshotFile is the durable on-disk representation of the index.
type snapshotFile struct {
	Version   int            `json:"version"`
	Dimension int            `json:"dimension"`
	Metric    Metric         `json:"metric"`
	Entries   []storedRecord `json:"entries"`
}

type storedRecord struct {
	Entry
	Deleted bool `json:"deleted,omitempty"`
}

// SaveFile writes a durable snapshot. The file is written to a temporary
// sibling and renamed so a crash mid-write never leaves a partial snapshot
// at the target path.
func (idx *Index) SaveFile(path string) error {
	records := idx.entries()
	file := snapshotFile{
		Version:   SnapshotVersion,
		Dimension: idx.dimension,
		Metric:    idx.metric,
		Entries:   make([]storedRecord, len(records)),
	}
	for i, rec := range records {
		file.Entries[i] = storedRecord{Entry: rec.Entry, Deleted: rec.Deleted}
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot from disk. wantDimension is the configured
// embedding provider's dimension; a disagreement means the snapshot was
// built under a different model version and is rejected eagerly with
// ErrCorruptIndex rather than failing on the first query.
func LoadFile(path string, wantDimension int) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptIndex, path, err)
	}

	if file.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %s has version %d, want %d",
			ErrCorruptIndex, path, file.Version, SnapshotVersion)
	}
	if file.Metric != MetricCosine && file.Metric != MetricDot {
		return nil, fmt.Errorf("%w: %s has unknown metric %q", ErrCorruptIndex, path, file.Metric)
	}
	if file.Dimension != wantDimension {
		return nil, fmt.Errorf("%w: %s stores %d-dimension vectors, provider expects %d",
			ErrCorruptIndex, path, file.Dimension, wantDimension)
	}

	idx := New(file.Dimension, file.Metric)
	next := emptySnapshot()
	for _, rec := range file.Entries {
		if len(rec.Vector) != file.Dimension {
			return nil, fmt.Errorf("%w: %s: chunk %s has %d dimensions, want %d",
				ErrCorruptIndex, path, rec.ChunkID, len(rec.Vector), file.Dimension)
		}
		if rec.Deleted {
			next.records[rec.ChunkID] = record{Entry: rec.Entry, Deleted: true}
			continue
		}
		next.put(rec.Entry)
	}
	idx.snap.Store(next)
	return idx, nil
}
