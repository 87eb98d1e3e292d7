package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// Document is the normalized form of a source document.
// It is immutable once loaded: re-loading changed bytes produces a new
// Document with a new ID rather than mutating in place.
type Document struct {
	ID          string   // Content-addressed: equal bytes yield an equal ID
	SourceURI   string   // Filesystem path or blob URI
	RawText     string   // Normalized plain text
	ContentHash string   // sha256 hex of the source bytes
	MIMEType    string
	Headings    []string // Section headings for markdown sources, in order
}

// HashBytes returns the sha256 hex digest used as the content hash.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
