// Package blob provides object storage for episode audio.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("blob: not found")

// Store defines the interface for audio blob operations. Blobs are addressed
// by key; the service derives keys as "{episode-uuid}.mp3".
type Store interface {
	// Put uploads a blob with the given content type and a public-read ACL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes a blob. Used as the compensating action when a
	// metadata write fails after the blob was written.
	Delete(ctx context.Context, key string) error

	// ACL returns the canned ACL of a stored blob ("public-read" or
	// "private").
	ACL(ctx context.Context, key string) (string, error)

	// URL returns the public URL podcast clients use to fetch the blob.
	URL(key string) string
}
