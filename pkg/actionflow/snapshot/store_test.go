package snapshot_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
	"github.com/randalmurphal/actionflow/pkg/actionflow/snapshot"
)

// storeFactories runs every contract test against each implementation.
func storeFactories(t *testing.T) map[string]func() snapshot.Store {
	return map[string]func() snapshot.Store{
		"memory": func() snapshot.Store { return snapshot.NewMemoryStore() },
		"sqlite": func() snapshot.Store {
			s, err := snapshot.NewSQLiteStore(filepath.Join(t.TempDir(), "snap.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_SaveLoad(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, "a", []byte("one")))
			data, err := store.Load(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), data)

			require.NoError(t, store.Save(ctx, "a", []byte("two")))
			data, err = store.Load(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), data)

			_, err = store.Load(ctx, "missing")
			assert.ErrorIs(t, err, snapshot.ErrNotFound)
		})
	}
}

func TestStore_ListDelete(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Save(ctx, "first", []byte("1")))
			require.NoError(t, store.Save(ctx, "second", []byte("22")))
			require.NoError(t, store.Save(ctx, "first", []byte("333")))

			infos, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 2)
			assert.Equal(t, "second", infos[0].Name)
			assert.Equal(t, "first", infos[1].Name)
			assert.Equal(t, int64(3), infos[1].Size)
			assert.Less(t, infos[0].Sequence, infos[1].Sequence)

			require.NoError(t, store.Delete(ctx, "first"))
			require.NoError(t, store.Delete(ctx, "first"))

			infos, err = store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, infos, 1)
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			require.NoError(t, store.Close())
			require.NoError(t, store.Close())

			ctx := context.Background()
			assert.ErrorIs(t, store.Save(ctx, "a", nil), snapshot.ErrStoreClosed)
			_, err := store.Load(ctx, "a")
			assert.ErrorIs(t, err, snapshot.ErrStoreClosed)
			_, err = store.List(ctx)
			assert.ErrorIs(t, err, snapshot.ErrStoreClosed)
			assert.ErrorIs(t, store.Delete(ctx, "a"), snapshot.ErrStoreClosed)
		})
	}
}

func TestStore_Concurrent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("s%d", i%5)
					_ = store.Save(ctx, key, []byte("x"))
					_, _ = store.Load(ctx, key)
					_, _ = store.List(ctx)
				}(i)
			}
			wg.Wait()

			infos, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, infos, 5)
		})
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	first, err := snapshot.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, "keep", []byte("persistent")))
	require.NoError(t, first.Close())

	second, err := snapshot.NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	data, err := second.Load(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := snapshot.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	snap := snapshot.New("nightly", map[string]payload.Entry{
		"user": {
			ID:     "user",
			Req:    map[string]any{"name": "ada"},
			Res:    "saved",
			Meta:   payload.Meta{RequestCount: 2, ResponseCount: 1, Status: payload.StatusCompleted},
			Frozen: true,
		},
	})

	data, err := snap.Marshal()
	require.NoError(t, err)

	got, err := snapshot.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Version, got.Version)
	assert.Equal(t, "nightly", got.Name)

	e := got.Entries["user"]
	assert.Equal(t, map[string]any{"name": "ada"}, e.Req)
	assert.Equal(t, "saved", e.Res)
	assert.Equal(t, 2, e.Meta.RequestCount)
	assert.Equal(t, payload.StatusCompleted, e.Meta.Status)
	assert.True(t, e.Frozen)
}

func TestUnmarshal_Errors(t *testing.T) {
	_, err := snapshot.Unmarshal([]byte("{"))
	assert.Error(t, err)

	_, err = snapshot.Unmarshal([]byte(`{"version": 99}`))
	assert.ErrorIs(t, err, snapshot.ErrUnsupportedVersion)

	got, err := snapshot.Unmarshal([]byte(`{"version": 1}`))
	require.NoError(t, err)
	assert.NotNil(t, got.Entries)
}
