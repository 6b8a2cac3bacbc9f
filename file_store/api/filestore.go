// An interface into content addressed bulk file storage.
package api

import (
	"io"
)

// Stored files are addressed by their sha256 digest. Backends shard
// the digest into hash[0:2]/hash[2:4]/hash to keep directory fanout
// bounded.
type FileReader interface {
	io.ReadSeekCloser
}

type FileStore interface {
	// Put streams the reader into storage under the digest. Putting
	// an existing digest is a no-op as contents are immutable.
	Put(sha256_digest string, reader io.Reader) error

	Open(sha256_digest string) (FileReader, error)

	// Size returns the stored size in bytes.
	Size(sha256_digest string) (int64, error)

	Exists(sha256_digest string) bool

	Delete(sha256_digest string) error
}

// ShardedComponents returns the path components for a digest.
func ShardedComponents(sha256_digest string) []string {
	if len(sha256_digest) < 4 {
		return []string{sha256_digest}
	}
	return []string{
		sha256_digest[0:2],
		sha256_digest[2:4],
		sha256_digest,
	}
}
