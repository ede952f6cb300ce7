package benchmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/actionflow/pkg/actionflow"
	"github.com/randalmurphal/actionflow/pkg/actionflow/snapshot"
)

func populated(b *testing.B, n int) *actionflow.Engine {
	b.Helper()
	actions := make([]actionflow.Action, n)
	for i := range actions {
		actions[i] = actionflow.Action{ID: fmt.Sprintf("ch-%d", i)}
	}
	e := newEngine(b, actions...)
	ctx := context.Background()
	for _, a := range actions {
		e.Call(ctx, a.ID, map[string]any{"id": a.ID, "values": []int{1, 2, 3}})
	}
	return e
}

// BenchmarkExport_100 exports and encodes 100 channels.
func BenchmarkExport_100(b *testing.B) {
	e := populated(b, 100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Export().Marshal(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSaveSnapshot_Memory saves 100 channels to the memory store.
func BenchmarkSaveSnapshot_Memory(b *testing.B) {
	e := populated(b, 100)
	store := snapshot.NewMemoryStore()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.SaveSnapshot(ctx, store, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSaveSnapshot_SQLite saves 100 channels to a SQLite file.
func BenchmarkSaveSnapshot_SQLite(b *testing.B) {
	e := populated(b, 100)
	store, err := snapshot.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.SaveSnapshot(ctx, store, "bench"); err != nil {
			b.Fatal(err)
		}
	}
}
