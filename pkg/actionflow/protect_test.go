package actionflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/actionflow/pkg/actionflow/breathing"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
	settle  = 50 * time.Millisecond
)

func TestProtect_Block(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := register(t, e, Action{ID: "locked", Block: true})

	resp := e.Call(bg, "locked", "x")

	assert.False(t, resp.OK)
	assert.False(t, resp.Error, "block is a soft rejection")
	assert.ErrorIs(t, resp.Err, ErrBlocked)
	assert.Equal(t, "blocked", resp.Message)
	assert.Zero(t, rec.count())
}

func TestProtect_Throttle(t *testing.T) {
	e, fc := newTestEngine(t)
	rec := register(t, e, Action{ID: "save", Throttle: 100 * time.Millisecond})

	first := e.Call(bg, "save", 1)
	require.True(t, first.OK)

	fc.Step(50 * time.Millisecond)
	second := e.Call(bg, "save", 2)
	assert.False(t, second.OK)
	assert.False(t, second.Error)
	assert.ErrorIs(t, second.Err, ErrThrottled)
	assert.Equal(t, 50*time.Millisecond, second.Metadata.RemainingWait)
	assert.Contains(t, second.Message, "throttled")

	var te *ThrottleError
	require.True(t, errors.As(second.Err, &te))
	assert.Equal(t, "save", te.ChannelID)
	assert.Equal(t, 50*time.Millisecond, te.Remaining)

	fc.Step(50 * time.Millisecond)
	third := e.Call(bg, "save", 3)
	assert.True(t, third.OK)

	assert.Equal(t, []any{1, 3}, rec.all())
}

func TestProtect_ThrottleMeasuredFromCompletion(t *testing.T) {
	e, fc := newTestEngine(t)
	require.NoError(t, e.Action(Action{ID: "slow", Throttle: 100 * time.Millisecond}))
	require.NoError(t, e.On("slow", func(ctx Context, p any) (any, error) {
		fc.Step(80 * time.Millisecond)
		return p, nil
	}))

	require.True(t, e.Call(bg, "slow", 1).OK)

	fc.Step(60 * time.Millisecond)
	resp := e.Call(bg, "slow", 2)
	assert.ErrorIs(t, resp.Err, ErrThrottled)
	assert.Equal(t, 40*time.Millisecond, resp.Metadata.RemainingWait)
}

func TestProtect_ThrottleKeptAcrossReregistration(t *testing.T) {
	e, fc := newTestEngine(t)
	register(t, e, Action{ID: "save", Throttle: 100 * time.Millisecond})
	require.True(t, e.Call(bg, "save", 1).OK)

	require.NoError(t, e.Action(Action{ID: "save", Throttle: 200 * time.Millisecond}))
	fc.Step(150 * time.Millisecond)

	resp := e.Call(bg, "save", 2)
	assert.ErrorIs(t, resp.Err, ErrThrottled)
	assert.Equal(t, 50*time.Millisecond, resp.Metadata.RemainingWait)
}

func TestProtect_ThrottleSurvivesReregistrationInFlight(t *testing.T) {
	e, _ := newTestEngine(t)
	a := Action{ID: "save", Throttle: 100 * time.Millisecond}
	entered := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, e.Action(a))
	require.NoError(t, e.On("save", func(ctx Context, p any) (any, error) {
		close(entered)
		<-release
		return p, nil
	}))

	done := make(chan Response, 1)
	go func() { done <- e.Call(bg, "save", 1) }()
	<-entered

	// A manifest reload re-applies the same declaration mid-flight.
	require.NoError(t, e.Action(a))
	close(release)
	require.True(t, (<-done).OK)

	resp := e.Call(bg, "save", 2)
	assert.ErrorIs(t, resp.Err, ErrThrottled)
	assert.Equal(t, 100*time.Millisecond, resp.Metadata.RemainingWait)
}

func TestProtect_Debounce(t *testing.T) {
	e, fc := newTestEngine(t)
	rec := register(t, e, Action{ID: "search", Debounce: 300 * time.Millisecond})

	for i := 1; i <= 5; i++ {
		resp := e.Call(bg, "search", fmt.Sprintf("q%d", i))
		assert.False(t, resp.OK)
		assert.False(t, resp.Error)
		assert.ErrorIs(t, resp.Err, ErrDebounced)
		assert.Equal(t, 300*time.Millisecond, resp.Metadata.RemainingWait)
		if i < 5 {
			fc.Step(20 * time.Millisecond)
		}
	}
	assert.Zero(t, rec.count())

	fc.Step(299 * time.Millisecond)
	assert.Never(t, func() bool { return rec.count() > 0 }, settle, tick)

	fc.Step(time.Millisecond)
	assert.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Equal(t, "q5", rec.last())

	fc.Step(time.Second)
	assert.Never(t, func() bool { return rec.count() > 1 }, settle, tick)
}

func TestProtect_DebounceMaxWait(t *testing.T) {
	e, fc := newTestEngine(t)
	rec := register(t, e, Action{
		ID:       "search",
		Debounce: 300 * time.Millisecond,
		MaxWait:  time.Second,
	})

	for i := 0; i < 5; i++ {
		resp := e.Call(bg, "search", i)
		require.ErrorIs(t, resp.Err, ErrDebounced)
		fc.Step(200 * time.Millisecond)
	}

	// The burst is now one second old, so this call passes immediately.
	resp := e.Call(bg, "search", 5)
	require.True(t, resp.OK)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 5, rec.last())

	// The timer armed by the previous call was cancelled.
	fc.Step(time.Second)
	assert.Never(t, func() bool { return rec.count() > 1 }, settle, tick)

	// A new burst starts from scratch.
	resp = e.Call(bg, "search", 6)
	assert.ErrorIs(t, resp.Err, ErrDebounced)
}

func TestProtect_DebounceThenThrottle(t *testing.T) {
	e, fc := newTestEngine(t)
	rec := register(t, e, Action{
		ID:       "typing",
		Debounce: 100 * time.Millisecond,
		Throttle: time.Second,
	})

	require.ErrorIs(t, e.Call(bg, "typing", "a").Err, ErrDebounced)
	fc.Step(100 * time.Millisecond)
	require.Eventually(t, func() bool { return completed(e, "typing") == 1 }, waitFor, tick)
	assert.Equal(t, "a", rec.last())

	resp := e.Call(bg, "typing", "b")
	assert.ErrorIs(t, resp.Err, ErrThrottled, "throttle runs before debounce")
}

func TestProtect_ForgetCancelsDebounce(t *testing.T) {
	e, fc := newTestEngine(t)
	rec := register(t, e, Action{ID: "search", Debounce: 100 * time.Millisecond})

	e.Call(bg, "search", "q")
	assert.True(t, e.Forget("search"))

	fc.Step(time.Second)
	assert.Never(t, func() bool { return rec.count() > 0 }, settle, tick)
}

func TestProtect_Recuperation(t *testing.T) {
	e, fc := newTestEngine(t, WithBreathing(breathing.Config{MinSamples: 5}))

	require.NoError(t, e.Action(Action{ID: "flaky"}))
	require.NoError(t, e.On("flaky", failing(errBoom)))
	normal := register(t, e, Action{ID: "normal"})
	vital := register(t, e, Action{ID: "vital", Priority: PriorityCritical})

	for i := 0; i < 5; i++ {
		resp := e.Call(bg, "flaky", i)
		require.True(t, resp.Error)
	}

	st := e.GetBreathingState()
	require.True(t, st.IsRecuperating)
	assert.InDelta(t, 1.0, st.Stress, 1e-9)

	resp := e.Call(bg, "normal", "x")
	assert.False(t, resp.OK)
	assert.False(t, resp.Error)
	assert.ErrorIs(t, resp.Err, ErrRecuperating)
	assert.Zero(t, normal.count())

	resp = e.Call(bg, "vital", "x")
	assert.True(t, resp.OK, "critical channels bypass recuperation")
	assert.Equal(t, 1, vital.count())

	// Samples age out of the window.
	fc.Step(11 * time.Second)
	st = e.GetBreathingState()
	assert.False(t, st.IsRecuperating)
	assert.Zero(t, st.Stress)

	assert.True(t, e.Call(bg, "normal", "x").OK)
}

func TestProtect_RecuperationFromLatency(t *testing.T) {
	e, fc := newTestEngine(t, WithBreathing(breathing.Config{
		MinSamples:    3,
		SlowThreshold: 100 * time.Millisecond,
	}))
	require.NoError(t, e.Action(Action{ID: "slow"}))
	require.NoError(t, e.On("slow", func(ctx Context, p any) (any, error) {
		fc.Step(200 * time.Millisecond)
		return p, nil
	}))
	register(t, e, Action{ID: "other"})

	for i := 0; i < 3; i++ {
		require.True(t, e.Call(bg, "slow", i).OK)
	}

	assert.True(t, e.GetBreathingState().IsRecuperating)
	assert.ErrorIs(t, e.Call(bg, "other", "x").Err, ErrRecuperating)
}
