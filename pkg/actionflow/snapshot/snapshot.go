// Package snapshot persists payload store contents.
//
// A Snapshot is a JSON document holding every payload entry of an engine at
// one point in time. Stores keep snapshots by name; MemoryStore is for tests
// and SQLiteStore for single-process persistence. Nothing in the call path
// depends on a store, so persistence is strictly best-effort.
//
// Payload values go through encoding/json, so a restored entry holds the
// JSON shape of the original value (numbers become float64, structs become
// maps).
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
)

// Version is the current snapshot format version.
const Version = 1

// Snapshot is the persisted payload state of an engine.
type Snapshot struct {
	Version   int                      `json:"version"`
	Name      string                   `json:"name"`
	Timestamp time.Time                `json:"timestamp"`
	Entries   map[string]payload.Entry `json:"entries"`
}

// New creates a snapshot of entries.
func New(name string, entries map[string]payload.Entry) *Snapshot {
	if entries == nil {
		entries = map[string]payload.Entry{}
	}
	return &Snapshot{
		Version:   Version,
		Name:      name,
		Timestamp: time.Now().UTC(),
		Entries:   entries,
	}
}

// Marshal serializes the snapshot to JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a snapshot and checks its version.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	if s.Entries == nil {
		s.Entries = map[string]payload.Entry{}
	}
	return &s, nil
}
