package breathing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// State is a snapshot of the monitor.
type State struct {
	Stress         float64       `json:"stress"`
	IsRecuperating bool          `json:"is_recuperating"`
	CurrentRate    time.Duration `json:"current_rate"`

	Samples    int           `json:"samples"`
	ErrorRate  float64       `json:"error_rate"`
	AvgLatency time.Duration `json:"avg_latency"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

type sample struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// Monitor derives system stress from execution samples.
// It is safe for concurrent use.
type Monitor struct {
	cfg    Config
	clock  clock.WithDelayedExecution
	logger *slog.Logger

	mu        sync.Mutex
	samples   []sample
	state     State
	listeners []func(State)

	loopMu     sync.Mutex
	running    bool
	wake       clock.Timer
	generation uint64
	ctx        context.Context
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Monitor. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) (*Monitor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state = State{CurrentRate: cfg.BaseRate, UpdatedAt: m.clock.Now()}
	return m, nil
}

// Config returns the effective settings.
func (m *Monitor) Config() Config {
	return m.cfg
}

// OnChange registers fn to be called when the monitor enters or leaves
// recuperation. Listeners run synchronously on the goroutine that caused the
// transition and must not block.
func (m *Monitor) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Record adds an execution sample and re-evaluates.
func (m *Monitor) Record(latency time.Duration, failed bool) State {
	m.mu.Lock()
	now := m.clock.Now()
	m.samples = append(m.samples, sample{at: now, latency: latency, failed: failed})
	st, changed, listeners := m.evaluateLocked(now)
	m.mu.Unlock()

	m.notify(st, changed, listeners)
	return st
}

// Evaluate ages out old samples and recomputes the state.
func (m *Monitor) Evaluate() State {
	m.mu.Lock()
	st, changed, listeners := m.evaluateLocked(m.clock.Now())
	m.mu.Unlock()

	m.notify(st, changed, listeners)
	return st
}

// State returns the last computed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsRecuperating reports whether the monitor is in recuperation.
func (m *Monitor) IsRecuperating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsRecuperating
}

// Reset drops every sample and returns to calm.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.samples = nil
	wasRecuperating := m.state.IsRecuperating
	m.state = State{CurrentRate: m.cfg.BaseRate, UpdatedAt: m.clock.Now()}
	st := m.state
	listeners := append([]func(State){}, m.listeners...)
	m.mu.Unlock()

	m.notify(st, wasRecuperating, listeners)
}

// evaluateLocked prunes the window and recomputes the state.
// Caller holds m.mu.
func (m *Monitor) evaluateLocked(now time.Time) (State, bool, []func(State)) {
	m.pruneLocked(now)

	var (
		total  time.Duration
		failed int
	)
	for _, s := range m.samples {
		total += s.latency
		if s.failed {
			failed++
		}
	}

	n := len(m.samples)
	st := State{
		Samples:        n,
		IsRecuperating: m.state.IsRecuperating,
		UpdatedAt:      now,
	}
	if n > 0 {
		st.AvgLatency = total / time.Duration(n)
		st.ErrorRate = float64(failed) / float64(n)
	}
	if n >= m.cfg.MinSamples && n > 0 {
		latencyStress := 1.0
		if m.cfg.SlowThreshold > 0 {
			latencyStress = min(float64(st.AvgLatency)/float64(m.cfg.SlowThreshold), 1)
		}
		st.Stress = max(latencyStress, st.ErrorRate)
	}

	switch {
	case !st.IsRecuperating && st.Stress >= m.cfg.HighWater:
		st.IsRecuperating = true
	case st.IsRecuperating && st.Stress < m.cfg.LowWater:
		st.IsRecuperating = false
	}

	if st.IsRecuperating {
		st.CurrentRate = m.cfg.RecoveryRate
	} else {
		st.CurrentRate = m.cfg.BaseRate + time.Duration(float64(m.cfg.MaxRate-m.cfg.BaseRate)*st.Stress)
	}

	changed := st.IsRecuperating != m.state.IsRecuperating
	m.state = st

	var listeners []func(State)
	if changed {
		listeners = append(listeners, m.listeners...)
	}
	return st, changed, listeners
}

// pruneLocked drops samples older than the window and beyond the count bound.
func (m *Monitor) pruneLocked(now time.Time) {
	if m.cfg.Window > 0 {
		cutoff := now.Add(-m.cfg.Window)
		i := 0
		for i < len(m.samples) && !m.samples[i].at.After(cutoff) {
			i++
		}
		m.samples = m.samples[i:]
	}
	if m.cfg.MaxSamples > 0 && len(m.samples) > m.cfg.MaxSamples {
		m.samples = m.samples[len(m.samples)-m.cfg.MaxSamples:]
	}
	if cap(m.samples) > 4*m.cfg.MaxSamples && m.cfg.MaxSamples > 0 {
		m.samples = append([]sample(nil), m.samples...)
	}
}

func (m *Monitor) notify(st State, changed bool, listeners []func(State)) {
	if !changed {
		return
	}
	if st.IsRecuperating {
		m.logger.Warn("recuperation started",
			slog.Float64("stress", st.Stress),
			slog.Float64("error_rate", st.ErrorRate),
			slog.Duration("avg_latency", st.AvgLatency),
		)
	} else {
		m.logger.Info("recuperation ended", slog.Float64("stress", st.Stress))
	}
	for _, fn := range listeners {
		fn(st)
	}
}

// Start runs the evaluation loop until ctx is done or Stop is called.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.ctx = ctx
	m.armLocked(m.State().CurrentRate)
}

// Stop ends the evaluation loop. It is idempotent.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.running = false
	m.generation++
	if m.wake != nil {
		m.wake.Stop()
		m.wake = nil
	}
}

// Running reports whether the evaluation loop is active.
func (m *Monitor) Running() bool {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	return m.running
}

// armLocked schedules the next evaluation. Caller holds m.loopMu.
func (m *Monitor) armLocked(d time.Duration) {
	m.generation++
	gen := m.generation
	// The clock may call back while holding its own lock.
	m.wake = m.clock.AfterFunc(d, func() { go m.loop(gen) })
}

func (m *Monitor) loop(gen uint64) {
	m.loopMu.Lock()
	if !m.running || gen != m.generation {
		m.loopMu.Unlock()
		return
	}
	if err := m.ctx.Err(); err != nil {
		m.running = false
		m.wake = nil
		m.loopMu.Unlock()
		return
	}
	m.loopMu.Unlock()

	st := m.Evaluate()

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if !m.running || gen != m.generation {
		return
	}
	m.armLocked(st.CurrentRate)
}
