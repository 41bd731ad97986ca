// Package kvstore defines the flat key-value storage contract behind the
// non-S3 remote path schemes, with PostgreSQL and MongoDB
// implementations. Keys form a flat namespace; any hierarchy is
// synthesized above this layer from the key delimiter.
package kvstore

import (
	"context"
	"time"
)

// Entry describes one stored key.
type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is the interface every key-value backend implements. Lookups on
// missing keys fail with an error wrapping fs.ErrNotExist.
type Store interface {
	// List returns all entries whose key starts with prefix, in key order.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Read returns the full value of a key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores the full value of a key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Rename moves a value to a new key, replacing any existing value
	// at newKey. The caller decides whether an occupied destination is
	// an error before invoking Rename.
	Rename(ctx context.Context, oldKey, newKey string) error

	// Stat returns the entry for a key.
	Stat(ctx context.Context, key string) (Entry, error)

	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the underlying connection.
	Close() error
}
