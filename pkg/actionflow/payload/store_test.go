package payload_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
)

func newStore(opts ...payload.Option) (*payload.Store, *testclock.FakePassiveClock) {
	fc := testclock.NewFakePassiveClock(time.Unix(1_700_000_000, 0))
	return payload.New(append([]payload.Option{payload.WithClock(fc)}, opts...)...), fc
}

func TestStore_RequestResponse(t *testing.T) {
	s, fc := newStore()

	require.NoError(t, s.SetReq("user", map[string]any{"name": "ada"}))
	s.MarkPending("user")

	e, ok := s.Get("user")
	require.True(t, ok)
	assert.Equal(t, payload.StatusPending, e.Meta.Status)
	assert.Equal(t, 1, e.Meta.RequestCount)
	assert.Equal(t, fc.Now(), e.Meta.LastRequestTime)

	fc.SetTime(fc.Now().Add(time.Second))
	s.SetRes("user", "ok")

	e, _ = s.Get("user")
	assert.Equal(t, payload.StatusCompleted, e.Meta.Status)
	assert.Equal(t, 1, e.Meta.ResponseCount)
	assert.Equal(t, fc.Now(), e.Meta.LastResponseTime)

	req, ok := s.Req("user")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "ada"}, req)

	res, ok := s.Res("user")
	require.True(t, ok)
	assert.Equal(t, "ok", res)
}

func TestStore_Missing(t *testing.T) {
	s, _ := newStore()

	_, ok := s.Get("nope")
	assert.False(t, ok)
	_, ok = s.Req("nope")
	assert.False(t, ok)
	_, ok = s.Res("nope")
	assert.False(t, ok)
	assert.Nil(t, s.History("nope"))
	assert.False(t, s.Delete("nope"))
}

func TestStore_Failed(t *testing.T) {
	s, _ := newStore()

	require.NoError(t, s.SetReq("job", "run"))
	s.SetRes("job", 1)
	s.SetFailed("job", errors.New("exploded"))

	e, ok := s.Get("job")
	require.True(t, ok)
	assert.Equal(t, payload.StatusFailed, e.Meta.Status)
	assert.Equal(t, "exploded", e.Meta.LastError)
	assert.Equal(t, 1, e.Res, "failure keeps the previous response")

	s.SetRes("job", 2)
	e, _ = s.Get("job")
	assert.Empty(t, e.Meta.LastError)
}

func TestStore_ResponsesNeedAnEntry(t *testing.T) {
	s, _ := newStore()

	assert.False(t, s.MarkPending("gone"))
	assert.False(t, s.SetRes("gone", "late"))
	assert.False(t, s.SetFailed("gone", errors.New("late")))
	_, ok := s.Get("gone")
	assert.False(t, ok)

	require.NoError(t, s.SetReq("job", 1))
	require.True(t, s.Delete("job"))
	assert.False(t, s.SetRes("job", "late"), "a deleted entry is not recreated")
	assert.Zero(t, s.Len())

	require.NoError(t, s.SetReq("job", 2))
	assert.True(t, s.SetRes("job", "ok"))
}

func TestStore_Frozen(t *testing.T) {
	s, _ := newStore()

	require.NoError(t, s.SetReq("cfg", "v1"))
	s.Freeze("cfg")
	assert.True(t, s.IsFrozen("cfg"))

	err := s.SetReq("cfg", "v2")
	assert.ErrorIs(t, err, payload.ErrFrozen)

	req, _ := s.Req("cfg")
	assert.Equal(t, "v1", req)

	s.Unfreeze("cfg")
	require.NoError(t, s.SetReq("cfg", "v2"))
	req, _ = s.Req("cfg")
	assert.Equal(t, "v2", req)
}

func TestStore_FreezeCreates(t *testing.T) {
	s, _ := newStore()
	s.Freeze("fresh")
	assert.ErrorIs(t, s.SetReq("fresh", 1), payload.ErrFrozen)
}

// TestStore_History tests the bounded ring, oldest first.
func TestStore_History(t *testing.T) {
	s, _ := newStore(payload.WithHistorySize(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SetReq("h", i))
	}

	h := s.History("h")
	require.Len(t, h, 3)
	for i, r := range h {
		assert.Equal(t, payload.KindRequest, r.Kind)
		assert.Equal(t, i+2, r.Value)
	}
}

func TestStore_HistoryDisabled(t *testing.T) {
	s, _ := newStore(payload.WithHistorySize(0))
	require.NoError(t, s.SetReq("h", 1))
	assert.Empty(t, s.History("h"))
}

func TestStore_DeleteClearIDs(t *testing.T) {
	s, _ := newStore()

	require.NoError(t, s.SetReq("a", 1))
	require.NoError(t, s.SetReq("b", 2))
	assert.ElementsMatch(t, []string{"a", "b"}, s.IDs())

	assert.True(t, s.Delete("a"))
	assert.False(t, s.Delete("a"))
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_SnapshotRestore(t *testing.T) {
	s, _ := newStore()

	require.NoError(t, s.SetReq("a", "req"))
	s.SetRes("a", "res")
	s.Freeze("a")

	snap := s.Snapshot()
	require.Contains(t, snap, "a")

	other, _ := newStore()
	other.Restore(snap)

	e, ok := other.Get("a")
	require.True(t, ok)
	assert.Equal(t, "req", e.Req)
	assert.Equal(t, "res", e.Res)
	assert.True(t, e.Frozen)
	assert.Equal(t, payload.StatusCompleted, e.Meta.Status)
}

// TestStore_LastWriteWins tests that concurrent responses leave exactly one
// of the written values.
func TestStore_LastWriteWins(t *testing.T) {
	s, _ := newStore()
	require.NoError(t, s.SetReq("race", "go"))

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			s.SetRes("race", fmt.Sprintf("v%d", i))
		}(i)
	}
	wg.Wait()

	e, ok := s.Get("race")
	require.True(t, ok)
	assert.Equal(t, writers, e.Meta.ResponseCount)
	assert.Regexp(t, `^v\d+$`, e.Res)

	s.SetRes("race", "final")
	res, _ := s.Res("race")
	assert.Equal(t, "final", res)
}
