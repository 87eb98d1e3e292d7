package index

import "errors"

var (
	// ErrEmptyIndex indicates a search against an index with no live entries.
	// Fatal to the query path, not to the process: build or rebuild the index.
	ErrEmptyIndex = errors.New("vector index is empty: run an index build")

	// ErrCorruptIndex indicates a snapshot that cannot serve the configured
	// provider: wrong version, malformed payload, or dimension drift.
	// The remedy is a rebuild from source documents.
	ErrCorruptIndex = errors.New("corrupt index snapshot: rebuild the index")

	// ErrDimensionMismatch indicates a vector whose dimension disagrees with
	// the index configuration.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
