package actionflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"
)

// epoch is the fake clock start used across tests.
var epoch = time.Unix(1_700_000_000, 0)

// newTestEngine returns an engine on a fake clock with the breathing loop
// off and logs discarded. The engine is closed when the test ends.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testclock.FakeClock) {
	t.Helper()
	fc := testclock.NewFakeClock(epoch)
	base := []Option{
		WithClock(fc),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithBreathingLoop(false),
	}
	e := New(append(base, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return e, fc
}

// recorder is a handler that keeps every payload it receives.
type recorder struct {
	mu       sync.Mutex
	payloads []any
	contexts []Context
}

func (r *recorder) handle(ctx Context, p any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	r.contexts = append(r.contexts, ctx)
	return p, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func (r *recorder) last() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.payloads) == 0 {
		return nil
	}
	return r.payloads[len(r.payloads)-1]
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.payloads...)
}

func (r *recorder) lastContext() Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contexts) == 0 {
		return nil
	}
	return r.contexts[len(r.contexts)-1]
}

// register adds a channel with a recording handler.
func register(t *testing.T, e *Engine, a Action) *recorder {
	t.Helper()
	rec := &recorder{}
	if err := e.Action(a); err != nil {
		t.Fatalf("register %s: %v", a.ID, err)
	}
	if err := e.On(a.ID, rec.handle); err != nil {
		t.Fatalf("handler %s: %v", a.ID, err)
	}
	return rec
}

// completed returns how many responses the payload store has recorded for
// id. It moves only after the dispatch bookkeeping is done.
func completed(e *Engine, id string) int {
	entry, ok := e.Get(id)
	if !ok {
		return 0
	}
	return entry.Meta.ResponseCount
}

// failing returns a handler that always returns err.
func failing(err error) Handler {
	return func(ctx Context, p any) (any, error) {
		return nil, err
	}
}

// panicking returns a handler that panics with v.
func panicking(v any) Handler {
	return func(ctx Context, p any) (any, error) {
		panic(v)
	}
}

var errBoom = errors.New("boom")

var bg = context.Background()
