package actionflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/actionflow/pkg/actionflow/event"
	"github.com/randalmurphal/actionflow/pkg/actionflow/observability"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// gateState is the per-channel protection state. It lives beside the
// channel, not in it, so re-registering a channel keeps the throttle window
// and Forget drops everything.
type gateState struct {
	mu sync.Mutex

	// lastExec is when the last dispatch completed.
	lastExec time.Time

	// Debounce burst.
	burstStart time.Time
	armed      bool
	generation uint64
}

func (e *Engine) gate(id string) *gateState {
	return e.gates.GetOrCreate(id, func() *gateState { return &gateState{} })
}

// protect runs block, throttle, debounce and recuperation in that order.
// It returns false with the rejection response when the call must stop.
// bypass skips debounce for calls re-entering from a debounce timer.
func (e *Engine) protect(ctx context.Context, ch *Channel, in any, bypass bool, callID string) (Response, bool) {
	a := ch.action
	id := a.ID

	if a.Block {
		observability.LogCallRejected(e.logger, id, "blocked")
		return e.reject(ctx, id, callID, observability.OutcomeBlocked, event.TypeBlocked, ErrBlocked, Metadata{}), false
	}

	if ch.plan.Protected {
		g := e.gate(id)
		now := e.clock.Now()

		if a.Throttle > 0 {
			g.mu.Lock()
			last := g.lastExec
			g.mu.Unlock()

			if !last.IsZero() {
				if elapsed := now.Sub(last); elapsed < a.Throttle {
					remaining := a.Throttle - elapsed
					observability.LogCallRejected(e.logger, id, "throttled", slog.Duration("remaining", remaining))
					err := &ThrottleError{ChannelID: id, Remaining: remaining}
					resp := e.reject(ctx, id, callID, observability.OutcomeThrottled, event.TypeThrottled, err,
						Metadata{RemainingWait: remaining})
					resp.Message = fmt.Sprintf("throttled: retry in %s", remaining)
					return resp, false
				}
			}
		}

		if a.Debounce > 0 && !bypass {
			if resp, ok := e.debounce(ctx, ch, g, in, now, callID); !ok {
				return resp, false
			}
		}
	}

	if a.Priority != PriorityCritical && e.monitor.IsRecuperating() {
		observability.LogCallRejected(e.logger, id, "recuperating")
		return e.reject(ctx, id, callID, observability.OutcomeRecuperating, event.TypeRecuperating, ErrRecuperating, Metadata{}), false
	}

	return Response{}, true
}

// debounce absorbs the call into the channel's burst and re-arms the timer,
// unless the burst has reached MaxWait, in which case the call passes.
func (e *Engine) debounce(ctx context.Context, ch *Channel, g *gateState, in any, now time.Time, callID string) (Response, bool) {
	a := ch.action

	g.mu.Lock()
	if g.burstStart.IsZero() {
		g.burstStart = now
	}

	if a.MaxWait > 0 && now.Sub(g.burstStart) >= a.MaxWait {
		armed := g.armed
		g.burstStart = time.Time{}
		g.armed = false
		g.generation++
		g.mu.Unlock()

		if armed {
			e.scheduler.Forget(a.ID)
		}
		e.logger.Debug("debounce max wait reached", slog.String("channel_id", a.ID))
		return Response{}, true
	}

	g.armed = true
	g.generation++
	gen := g.generation
	_, err := e.scheduler.Keep(schedule.Entry{
		ID:       a.ID,
		Delay:    a.Debounce,
		Payload:  in,
		Callback: e.debounceFired(a.ID, gen),
	})
	g.mu.Unlock()

	if err != nil {
		return e.fail(ctx, a.ID, callID, fmt.Errorf("%w: %w", ErrSchedulingFailed, err), Metadata{}), false
	}

	observability.LogCallRejected(e.logger, a.ID, "debounced", slog.Duration("wait", a.Debounce))
	return e.reject(ctx, a.ID, callID, observability.OutcomeDebounced, event.TypeDebounced, ErrDebounced,
		Metadata{RemainingWait: a.Debounce}), false
}

// debounceFired re-enters the pipeline with the burst's latest payload.
// A fire from a timer that was re-armed in the meantime is dropped.
func (e *Engine) debounceFired(id string, gen uint64) schedule.Callback {
	return func(ctx context.Context, f schedule.Fire) {
		g, ok := e.gates.Get(id)
		if !ok {
			return
		}
		g.mu.Lock()
		if g.generation != gen {
			g.mu.Unlock()
			return
		}
		g.burstStart = time.Time{}
		g.armed = false
		g.mu.Unlock()

		e.call(ctx, id, f.Payload, true)
	}
}

// markExecuted records a completed dispatch for throttling. A gate removed
// by Forget or Clear while the handler ran is not recreated.
func (e *Engine) markExecuted(id string, at time.Time) {
	g, ok := e.gates.Get(id)
	if !ok {
		return
	}
	g.mu.Lock()
	g.lastExec = at
	g.mu.Unlock()
}
