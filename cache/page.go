package cache

import (
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Page is a rendered resource as it is stored in the cache and sent to clients.
// Pages are created once per cache miss and must not be mutated afterwards.
type Page struct {
	Bytes []byte `msgpack:"bytes"`
	// Seconds resolution, since HTTP dates cannot carry anything finer.
	LastModified time.Time `msgpack:"last_modified"`
	// Strong validator, quoted.
	ETag     string `msgpack:"etag"`
	MimeType string `msgpack:"mime_type"`
}

// NewPage creates a page record for the given bytes.
// The ETag is derived from the bytes only, so equal output always gets an equal ETag.
func NewPage(b []byte, lastModified time.Time, mimeType string) Page {
	return Page{
		Bytes:        b,
		LastModified: lastModified.UTC().Truncate(time.Second),
		ETag:         ETag(b),
		MimeType:     mimeType,
	}
}

// ETag returns the quoted 128-bit BLAKE3 hash of b.
func ETag(b []byte) string {
	sum := blake3.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
