package actionflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/actionflow/pkg/actionflow/observability"
	"github.com/randalmurphal/actionflow/pkg/actionflow/snapshot"
)

// Export captures the payload store. Channels and handlers hold functions
// and are not exported; register them again before or after Import.
func (e *Engine) Export() *snapshot.Snapshot {
	s := snapshot.New("export", e.payloads.Snapshot())
	s.Timestamp = e.clock.Now().UTC()
	return s
}

// Import replaces the payload entries named in s. Entries for other ids
// are kept. Payload values are taken as they are; see LoadSnapshot for how
// a stored snapshot changes their types.
func (e *Engine) Import(s *snapshot.Snapshot) error {
	if s == nil {
		return errors.New("import: nil snapshot")
	}
	if s.Version > snapshot.Version {
		return fmt.Errorf("import: %w: %d", snapshot.ErrUnsupportedVersion, s.Version)
	}
	e.payloads.Restore(s.Entries)
	return nil
}

// SaveSnapshot exports the payload store to store under name.
func (e *Engine) SaveSnapshot(ctx context.Context, store snapshot.Store, name string) error {
	s := e.Export()
	s.Name = name

	data, err := s.Marshal()
	if err != nil {
		observability.LogSnapshotError(e.logger, "marshal", name, err)
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}
	if err := store.Save(ctx, name, data); err != nil {
		observability.LogSnapshotError(e.logger, "save", name, err)
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	observability.LogSnapshot(e.logger, "save", name, len(s.Entries))
	return nil
}

// LoadSnapshot imports the snapshot stored under name.
//
// Stored snapshots are JSON, so payloads come back in their JSON shapes:
// numbers are float64, structs and maps are map[string]any, slices are
// []any. Change detection compares types, so a channel with DetectChanges
// sees an int payload as changed from the restored float64 of the same
// value. Callers that need exact types should send JSON-shaped payloads or
// convert in a Selector or Transform.
func (e *Engine) LoadSnapshot(ctx context.Context, store snapshot.Store, name string) error {
	data, err := store.Load(ctx, name)
	if err != nil {
		observability.LogSnapshotError(e.logger, "load", name, err)
		return fmt.Errorf("load snapshot %s: %w", name, err)
	}
	s, err := snapshot.Unmarshal(data)
	if err != nil {
		observability.LogSnapshotError(e.logger, "decode", name, err)
		return fmt.Errorf("load snapshot %s: %w", name, err)
	}
	if err := e.Import(s); err != nil {
		return err
	}
	observability.LogSnapshot(e.logger, "load", name, len(s.Entries))
	return nil
}
