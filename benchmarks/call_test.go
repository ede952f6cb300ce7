package benchmarks

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/randalmurphal/actionflow/pkg/actionflow"
)

// newEngine returns an engine with logging discarded and the breathing loop off.
func newEngine(b *testing.B, actions ...actionflow.Action) *actionflow.Engine {
	b.Helper()
	e := actionflow.New(
		actionflow.WithLogger(slog.New(slog.DiscardHandler)),
		actionflow.WithBreathingLoop(false),
	)
	b.Cleanup(func() { _ = e.Close() })
	for _, a := range actions {
		if err := e.Action(a); err != nil {
			b.Fatal(err)
		}
		if err := e.On(a.ID, echo); err != nil {
			b.Fatal(err)
		}
	}
	return e
}

func echo(ctx actionflow.Context, p any) (any, error) { return p, nil }

// BenchmarkCall_ZeroOverhead calls a channel with no talents.
func BenchmarkCall_ZeroOverhead(b *testing.B) {
	e := newEngine(b, actionflow.Action{ID: "plain"})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Call(ctx, "plain", i)
	}
}

// BenchmarkCall_FastPath calls a channel with a single required check.
func BenchmarkCall_FastPath(b *testing.B) {
	e := newEngine(b, actionflow.Action{ID: "req", Required: actionflow.RequiredDefined})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Call(ctx, "req", i)
	}
}

// BenchmarkCall_Full calls a channel running every talent.
func BenchmarkCall_Full(b *testing.B) {
	e := newEngine(b, actionflow.Action{
		ID:       "full",
		Required: actionflow.RequiredNonEmpty,
		Schema: actionflow.SchemaFromBool(func(p any) bool {
			_, ok := p.(map[string]any)
			return ok
		}),
		Selector:  func(p any) (any, error) { return p, nil },
		When:      "n >= 0",
		Transform: func(p any) (any, error) { return p, nil },
	})
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Call(ctx, "full", map[string]any{"n": i})
	}
}

// BenchmarkCall_Throttled measures the rejection path.
func BenchmarkCall_Throttled(b *testing.B) {
	e := newEngine(b, actionflow.Action{ID: "t", Throttle: time.Hour})
	ctx := context.Background()
	_ = e.Call(ctx, "t", 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Call(ctx, "t", i)
	}
}

// BenchmarkCall_Parallel calls many channels from many goroutines.
func BenchmarkCall_Parallel(b *testing.B) {
	const channels = 64
	actions := make([]actionflow.Action, channels)
	for i := range actions {
		actions[i] = actionflow.Action{ID: fmt.Sprintf("ch-%d", i)}
	}
	e := newEngine(b, actions...)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = e.Call(ctx, actions[i%channels].ID, i)
			i++
		}
	})
}
