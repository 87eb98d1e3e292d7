package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	idx := New(3, MetricCosine)
	require.NoError(t, idx.Insert([]Entry{
		entry("c1", "doc1", 0, []float32{1, 0, 0}),
		entry("c2", "doc2", 0, []float32{0, 1, 0}),
		entry("c3", "doc3", 0, []float32{0.5, 0.5, 0}),
	}))
	idx.Remove([]string{"c3"})

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.SaveFile(path))

	loaded, err := LoadFile(path, 3)
	require.NoError(t, err)

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, MetricCosine, loaded.Metric())

	query := []float32{0.9, 0.1, 0}
	before, err := idx.Search(query, 10)
	require.NoError(t, err)
	after, err := loaded.Search(query, 10)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ChunkID, after[i].ChunkID, "hit %d", i)
		assert.InDelta(t, before[i].Score, after[i].Score, 1e-9, "hit %d", i)
	}

	// Metadata survives the round trip.
	e, ok := loaded.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "doc1", e.Meta.DocumentID)
	assert.Equal(t, "text c1", e.Meta.Text)

	// Tombstones survive too: the id stays dead until rebuild.
	_, ok = loaded.Get("c3")
	assert.False(t, ok)
}

func TestLoadFile_DimensionDrift(t *testing.T) {
	idx := New(3, MetricCosine)
	require.NoError(t, idx.Insert([]Entry{entry("c1", "d1", 0, []float32{1, 0, 0})}))

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.SaveFile(path))

	// A provider configured for a different dimension must be rejected at
	// load time, not at first query.
	_, err := LoadFile(path, 1536)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoadFile_MalformedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadFile(path, 3)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoadFile_UnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	payload := `{"version": 99, "dimension": 3, "metric": "cosine", "entries": []}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, err := LoadFile(path, 3)
	assert.ErrorIs(t, err, ErrCorruptIndex)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"), 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptIndex, "missing file is not corruption")
}
