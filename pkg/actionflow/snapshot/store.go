package snapshot

import (
	"context"
	"errors"
	"time"
)

// Store persists snapshots by name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data under name, overwriting any previous snapshot.
	Save(ctx context.Context, name string, data []byte) error

	// Load retrieves a snapshot.
	// Returns ErrNotFound if the snapshot doesn't exist.
	Load(ctx context.Context, name string) ([]byte, error)

	// List returns metadata for every snapshot, oldest save first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a snapshot. Returns nil if it doesn't exist.
	Delete(ctx context.Context, name string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the snapshot.
type Info struct {
	Name      string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for snapshot operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("snapshot store closed")

	// ErrUnsupportedVersion indicates a snapshot written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)
