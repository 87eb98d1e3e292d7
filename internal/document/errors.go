package document

import "errors"

var (
	// ErrUnsupportedFormat indicates the source mime type has no normalizer.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrLoad indicates the source could not be read or parsed.
	ErrLoad = errors.New("document load failed")
)
