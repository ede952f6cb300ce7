// Package registry provides the injectable key/value stores that back an
// actionflow engine: the channel registry, the subscriber map and the
// per-channel gate side table.
//
// Each Engine owns its own stores, so tests and independent engines never
// share state. The Store interface is what the engine depends on; Memory is
// the default implementation and is safe for concurrent use.
//
// # Basic Usage
//
//	channels := registry.NewMemory[string, *Channel]()
//	channels.Set("user-save", ch)
//
//	ch, ok := channels.Get("user-save")
//	channels.Delete("user-save")
//
// # Side Tables
//
// GetOrCreate lazily creates per-key state. The factory runs at most once per
// key, even under concurrent access:
//
//	state := gates.GetOrCreate(id, func() *gateState {
//	    return &gateState{}
//	})
//
// # Consistency
//
// Writes are last-write-wins. There is no read-modify-write transaction
// support; callers must treat values returned by Get as point-in-time
// snapshots. Range iterates a snapshot, so Set and Delete are safe inside the
// callback.
package registry
