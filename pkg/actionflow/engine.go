package actionflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/randalmurphal/actionflow/pkg/actionflow/breathing"
	"github.com/randalmurphal/actionflow/pkg/actionflow/config"
	"github.com/randalmurphal/actionflow/pkg/actionflow/event"
	"github.com/randalmurphal/actionflow/pkg/actionflow/observability"
	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
	"github.com/randalmurphal/actionflow/pkg/actionflow/registry"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// Channel is a registered action with its compiled plan and runtime counters.
// A Channel is replaced, never mutated, when its action is re-registered.
type Channel struct {
	action Action
	plan   *Plan
	err    error

	executions atomic.Int64
	completed  atomic.Int64
	failures   atomic.Int64
	lastExec   atomic.Int64
	totalNanos atomic.Int64
}

// Action returns the channel configuration.
func (c *Channel) Action() Action { return c.action }

// Plan returns the compiled plan, or nil if compilation failed.
func (c *Channel) Plan() *Plan { return c.plan }

// Err returns the compile error that makes the channel uncallable.
func (c *Channel) Err() error { return c.err }

// Stats returns the channel's runtime counters.
func (c *Channel) Stats() ChannelStats {
	s := ChannelStats{
		Executions: c.completed.Load(),
		Errors:     c.failures.Load(),
	}
	if ns := c.lastExec.Load(); ns != 0 {
		s.LastExecution = time.Unix(0, ns)
	}
	if s.Executions > 0 {
		s.AvgExecution = time.Duration(c.totalNanos.Load() / s.Executions)
	}
	return s
}

// ChannelStats are the runtime counters of one channel.
type ChannelStats struct {
	Executions    int64
	Errors        int64
	LastExecution time.Time
	AvgExecution  time.Duration
}

// Engine registers channels and runs calls through protection, processing
// and dispatch. It is safe for concurrent use.
type Engine struct {
	clock   clock.WithDelayedExecution
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	bus     event.Bus

	compiler  *Compiler
	channels  registry.Store[string, *Channel]
	handlers  registry.Store[string, Handler]
	gates     registry.Store[string, *gateState]
	payloads  *payload.Store
	scheduler *schedule.Scheduler
	monitor   *breathing.Monitor

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once

	watchMu  sync.Mutex
	watchers []*config.Watcher
}

// New creates an Engine.
//
// Example:
//
//	engine := actionflow.New(
//	    actionflow.WithLogger(logger),
//	    actionflow.WithMetrics(true),
//	)
//	defer engine.Close()
func New(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		clock:    cfg.clock,
		logger:   cfg.logger,
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		bus:      cfg.bus,
		compiler: NewCompiler(cfg.exprs),
		channels: cfg.channels,
		handlers: cfg.handlers,
		gates:    registry.NewMemory[string, *gateState](),
		payloads: payload.New(payload.WithClock(cfg.clock), payload.WithHistorySize(cfg.historySize)),
		scheduler: schedule.New(
			schedule.WithClock(cfg.clock),
			schedule.WithLogger(cfg.logger),
		),
	}
	if cfg.metrics {
		e.metrics = observability.NewMetricsRecorder()
	}
	if cfg.tracing {
		e.spans = observability.NewSpanManager()
	}
	if e.channels == nil {
		e.channels = registry.NewMemory[string, *Channel]()
	}
	if e.handlers == nil {
		e.handlers = registry.NewMemory[string, Handler]()
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	monitor, err := breathing.New(cfg.breathing, breathing.WithClock(cfg.clock), breathing.WithLogger(cfg.logger))
	if err != nil {
		cfg.logger.Error("invalid breathing config, using defaults", slog.String("error", err.Error()))
		monitor, _ = breathing.New(breathing.DefaultConfig(), breathing.WithClock(cfg.clock), breathing.WithLogger(cfg.logger))
	}
	e.monitor = monitor
	e.monitor.OnChange(e.breathingChanged)
	if cfg.startBreathing {
		e.monitor.Start(e.ctx)
	}

	return e
}

func (e *Engine) breathingChanged(st breathing.State) {
	e.metrics.RecordStress(e.ctx, st.Stress, st.IsRecuperating)
	e.publish(e.ctx, event.TypeBreathing, "", event.WithData(st))
}

// Action registers or replaces a channel and compiles its plan.
//
// A channel whose configuration fails to compile is still stored but every
// call to it fails with ErrNotCallable until it is registered again with a
// valid configuration. The returned error is a *CompileError.
func (e *Engine) Action(a Action) error {
	if e.closed.Load() {
		return ErrClosed
	}

	plan, err := e.compiler.Compile(a)
	ch := &Channel{action: a, plan: plan, err: err}

	if a.ID == "" {
		return err
	}
	e.channels.Set(a.ID, ch)

	if err != nil {
		e.logger.Warn("channel not callable", slog.String("channel_id", a.ID), slog.String("error", err.Error()))
		return err
	}

	if a.Payload != nil {
		if err := e.payloads.SetReq(a.ID, a.Payload); err != nil {
			e.logger.Debug("initial payload not stored", slog.String("channel_id", a.ID), slog.String("error", err.Error()))
		}
	}

	e.logger.Debug("channel registered",
		slog.String("channel_id", a.ID),
		slog.String("plan", plan.Kind.String()),
		slog.Int("talents", len(plan.Talents)),
	)
	return nil
}

// ActionAll registers every action and joins their errors.
func (e *Engine) ActionAll(actions ...Action) error {
	var errs []error
	for _, a := range actions {
		if err := e.Action(a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// On registers the handler for channel id, replacing any previous one.
// A handler may be registered before its channel.
func (e *Engine) On(id string, h Handler) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if id == "" {
		return fmt.Errorf("%w: handler id cannot be empty", ErrInvalidAction)
	}
	if h == nil {
		return fmt.Errorf("%w: handler for %s cannot be nil", ErrInvalidAction, id)
	}
	e.handlers.Set(id, h)
	return nil
}

// Call runs payload through channel id.
//
// The call runs on the caller's goroutine up to the handler's return. A
// scheduled channel returns as soon as its timer is registered; a debounced
// call returns immediately and a later call on a timer goroutine does the
// work. Call never panics on user code.
func (e *Engine) Call(ctx context.Context, id string, payload any) Response {
	return e.call(ctx, id, payload, false)
}

func (e *Engine) call(ctx context.Context, id string, in any, bypass bool) (resp Response) {
	callID := uuid.NewString()
	if e.closed.Load() {
		return Response{Message: ErrClosed.Error(), Error: true, Err: ErrClosed, Metadata: Metadata{CallID: callID}}
	}

	ctx, span := e.spans.StartCallSpan(ctx, id, callID)
	defer func() {
		var err error
		if resp.Error {
			err = resp.Err
		}
		e.spans.EndSpanWithError(span, err)
	}()
	e.publish(ctx, event.TypeCall, id, event.WithCallID(callID))

	ch, ok := e.channels.Get(id)
	if !ok {
		return e.fail(ctx, id, callID, fmt.Errorf("%w: %s", ErrChannelNotFound, id), Metadata{})
	}
	if ch.err != nil {
		return e.fail(ctx, id, callID, fmt.Errorf("%w: %w", ErrNotCallable, ch.err), Metadata{})
	}

	if resp, ok := e.protect(ctx, ch, in, bypass, callID); !ok {
		return resp
	}

	out, resp, ok := e.process(ctx, ch, in, callID)
	if !ok {
		return resp
	}

	if ch.plan.Scheduled {
		return e.schedule(ctx, ch, out, callID)
	}
	return e.dispatch(ctx, ch, out, callID, false)
}

// Forget removes the channel, its handler, payload, protection state and
// timer. Handlers already running complete. It reports whether anything
// was registered under id.
func (e *Engine) Forget(id string) bool {
	removed := e.channels.Delete(id)
	if e.handlers.Delete(id) {
		removed = true
	}
	if e.payloads.Delete(id) {
		removed = true
	}
	e.gates.Delete(id)
	e.scheduler.Forget(id)
	e.compiler.Invalidate(id)

	if removed {
		e.logger.Debug("channel forgotten", slog.String("channel_id", id))
	}
	return removed
}

// Clear forgets every channel and resets the breathing monitor.
func (e *Engine) Clear() {
	ids := e.channels.Keys()
	ids = append(ids, e.gates.Keys()...)
	for _, id := range ids {
		e.scheduler.Forget(id)
	}
	e.channels.Clear()
	e.handlers.Clear()
	e.gates.Clear()
	e.payloads.Clear()
	e.compiler.Reset()
	e.monitor.Reset()
}

// GetBreathingState re-evaluates and returns the breathing monitor state.
func (e *Engine) GetBreathingState() breathing.State {
	return e.monitor.Evaluate()
}

// Get returns the payload entry for id.
func (e *Engine) Get(id string) (payload.Entry, bool) {
	return e.payloads.Get(id)
}

// HasChanged reports whether p differs from the stored request for id,
// using the same comparison as change detection.
func (e *Engine) HasChanged(id string, p any) bool {
	prev, ok := e.payloads.Req(id)
	if !ok {
		return true
	}
	return changed(prev, p)
}

// Freeze stops request writes for id until Unfreeze.
func (e *Engine) Freeze(id string) { e.payloads.Freeze(id) }

// Unfreeze allows request writes for id again.
func (e *Engine) Unfreeze(id string) { e.payloads.Unfreeze(id) }

// History returns the recent payload records for id, oldest first.
func (e *Engine) History(id string) []payload.Record { return e.payloads.History(id) }

// Pause suspends the timer for id, keeping its remaining time.
func (e *Engine) Pause(id string) bool { return e.scheduler.Pause(id) }

// Resume restarts a paused timer.
func (e *Engine) Resume(id string) bool { return e.scheduler.Resume(id) }

// Timer returns the scheduler's view of the timer for id.
func (e *Engine) Timer(id string) (schedule.Info, bool) { return e.scheduler.Get(id) }

// Plan returns the compiled plan for id. It returns the compile error for
// an uncallable channel.
func (e *Engine) Plan(id string) (*Plan, error) {
	ch, ok := e.channels.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	if ch.err != nil {
		return nil, ch.err
	}
	return ch.plan, nil
}

// Stats returns the runtime counters for id.
func (e *Engine) Stats(id string) (ChannelStats, bool) {
	ch, ok := e.channels.Get(id)
	if !ok {
		return ChannelStats{}, false
	}
	return ch.Stats(), true
}

// CompilerStats returns the plan compiler counters.
func (e *Engine) CompilerStats() CompilerStats {
	return e.compiler.Stats()
}

// Channels returns the registered channel ids in sorted order.
func (e *Engine) Channels() []string {
	ids := e.channels.Keys()
	slices.Sort(ids)
	return ids
}

// Close stops timers, the breathing loop and any manifest watchers, then
// waits for chain reactions already started. It is idempotent.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.cancel()
		e.monitor.Stop()
		err = e.scheduler.Close()

		e.watchMu.Lock()
		for _, w := range e.watchers {
			err = errors.Join(err, w.Close())
		}
		e.watchers = nil
		e.watchMu.Unlock()

		e.inflight.Wait()
	})
	return err
}
