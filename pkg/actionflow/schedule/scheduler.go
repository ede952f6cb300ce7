package schedule

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// OverlapPolicy decides what happens when an execution comes due while the
// previous execution of the same record is still running.
type OverlapPolicy string

// Overlap policies.
const (
	// OverlapAllow starts the execution anyway. This is the default.
	OverlapAllow OverlapPolicy = "allow"

	// OverlapSkip drops the execution. It still counts against Repeat.
	OverlapSkip OverlapPolicy = "skip"

	// OverlapQueue runs executions of one record one at a time, in due order.
	OverlapQueue OverlapPolicy = "queue"
)

// ParseOverlap parses a policy name. The empty string is OverlapAllow.
func ParseOverlap(s string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OverlapAllow, nil
	case OverlapAllow, OverlapSkip, OverlapQueue:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown overlap policy %q", ErrInvalidEntry, s)
	}
}

// Callback is invoked for every execution of a record.
type Callback func(ctx context.Context, f Fire)

// Fire describes one execution.
type Fire struct {
	// ID is the record id.
	ID string
	// Payload is the snapshot registered with the record.
	Payload any
	// Execution is the 1-based execution number.
	Execution int
	// Due is the nominal time the execution was scheduled for.
	Due time.Time
	// Last is true for the final execution of a bounded record.
	Last bool
}

// Entry registers a record with Keep.
type Entry struct {
	ID       string
	Delay    time.Duration
	Interval time.Duration
	Repeat   Repeat
	Overlap  OverlapPolicy
	Payload  any
	Callback Callback
}

// Info is a point-in-time view of a record.
type Info struct {
	ID         string
	Due        time.Time
	Interval   time.Duration
	Remaining  int // -1 when unbounded
	Executions int
	Paused     bool
}

// timer is the scheduler-owned record.
type timer struct {
	id         string
	seq        uint64
	due        time.Time
	interval   time.Duration
	remaining  int
	executions int
	overlap    OverlapPolicy
	payload    any
	callback   Callback

	index      int
	paused     bool
	pausedLeft time.Duration

	running atomic.Int32

	qmu      sync.Mutex
	pending  []Fire
	draining bool
}

func (t *timer) info() Info {
	return Info{
		ID:         t.id,
		Due:        t.due,
		Interval:   t.interval,
		Remaining:  t.remaining,
		Executions: t.executions,
		Paused:     t.paused,
	}
}

// Scheduler owns timer records and the single clock wait that drives them.
// It is safe for concurrent use.
type Scheduler struct {
	clock  clock.WithDelayedExecution
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timers     map[string]*timer
	queue      timerHeap
	wake       clock.Timer
	generation uint64
	seq        uint64
	closed     bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock.RealClock{},
		logger: slog.Default(),
		timers: make(map[string]*timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Keep registers a record, replacing any existing record with the same id.
//
// A Never repeat cancels the previous record and registers nothing.
func (s *Scheduler) Keep(e Entry) (Info, error) {
	if err := validate(e); err != nil {
		return Info{}, &SchedulingError{ID: e.ID, Err: err}
	}

	overlap, err := ParseOverlap(string(e.Overlap))
	if err != nil {
		return Info{}, &SchedulingError{ID: e.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Info{}, &SchedulingError{ID: e.ID, Err: ErrClosed}
	}

	now := s.clock.Now()
	replaced := s.removeLocked(e.ID)

	if e.Repeat.IsNever() {
		if replaced {
			s.rearmLocked(now)
		}
		s.logger.Debug("schedule skipped, repeat is zero", slog.String("timer_id", e.ID))
		return Info{ID: e.ID}, nil
	}

	first := e.Delay
	if first == 0 {
		first = e.Interval
	}

	s.seq++
	t := &timer{
		id:        e.ID,
		seq:       s.seq,
		due:       now.Add(first),
		interval:  e.Interval,
		remaining: e.Repeat.Count(),
		overlap:   overlap,
		payload:   e.Payload,
		callback:  e.Callback,
	}
	s.timers[t.id] = t
	heap.Push(&s.queue, t)
	s.rearmLocked(now)

	s.logger.Debug("timer scheduled",
		slog.String("timer_id", t.id),
		slog.Time("due", t.due),
		slog.Duration("interval", t.interval),
		slog.String("repeat", e.Repeat.String()),
	)

	return t.info(), nil
}

func validate(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}
	if e.Callback == nil {
		return fmt.Errorf("%w: callback is required", ErrInvalidEntry)
	}
	if e.Delay < 0 {
		return fmt.Errorf("%w: negative delay %s", ErrInvalidDuration, e.Delay)
	}
	if e.Interval < 0 {
		return fmt.Errorf("%w: negative interval %s", ErrInvalidDuration, e.Interval)
	}
	if !e.Repeat.IsInfinite() && e.Repeat.Count() < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidRepeat)
	}
	if (e.Repeat.IsInfinite() || e.Repeat.Count() > 1) && e.Interval == 0 {
		return fmt.Errorf("%w: repeat %s requires an interval", ErrInvalidRepeat, e.Repeat)
	}
	return nil
}

// Forget removes the record for id and reports whether one existed.
// It is idempotent. Executions already started run to completion.
func (s *Scheduler) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(id) {
		return false
	}
	s.rearmLocked(s.clock.Now())
	s.logger.Debug("timer forgotten", slog.String("timer_id", id))
	return true
}

// Pause suspends a record, keeping the time left until its next execution.
func (s *Scheduler) Pause(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok || t.paused {
		return false
	}

	now := s.clock.Now()
	t.pausedLeft = t.due.Sub(now)
	if t.pausedLeft < 0 {
		t.pausedLeft = 0
	}
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
	}
	t.paused = true
	s.rearmLocked(now)
	return true
}

// Resume restarts a paused record with the time it had left.
func (s *Scheduler) Resume(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok || !t.paused {
		return false
	}

	now := s.clock.Now()
	t.paused = false
	t.due = now.Add(t.pausedLeft)
	t.pausedLeft = 0
	heap.Push(&s.queue, t)
	s.rearmLocked(now)
	return true
}

// Get returns a view of the record for id.
func (s *Scheduler) Get(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[id]
	if !ok {
		return Info{}, false
	}
	return t.info(), true
}

// Has reports whether a record exists for id.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// Len returns the number of records, paused ones included.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels every record and the scheduler context.
// Callbacks already running observe the cancelled context.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.wake != nil {
		s.wake.Stop()
		s.wake = nil
	}
	s.timers = make(map[string]*timer)
	s.queue = nil
	s.cancel()
	return nil
}

// removeLocked drops the record for id. Caller holds s.mu.
func (s *Scheduler) removeLocked(id string) bool {
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	if t.index >= 0 && t.index < len(s.queue) && s.queue[t.index] == t {
		heap.Remove(&s.queue, t.index)
	}
	delete(s.timers, id)
	return true
}

// rearmLocked points the shared clock wait at the earliest record.
// Caller holds s.mu.
func (s *Scheduler) rearmLocked(now time.Time) {
	if s.wake != nil {
		s.wake.Stop()
		s.wake = nil
	}
	s.generation++
	if len(s.queue) == 0 {
		return
	}

	d := s.queue[0].due.Sub(now)
	if d < 0 {
		d = 0
	}
	gen := s.generation
	// The clock may invoke this while holding its own lock, so the
	// evaluation runs on a fresh goroutine.
	s.wake = s.clock.AfterFunc(d, func() { go s.tick(gen) })
}

type firing struct {
	t *timer
	f Fire
}

// tick executes every due record and re-arms the wait.
func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	var due []firing
	for len(s.queue) > 0 && !s.queue[0].due.After(now) {
		t := s.queue[0]
		t.executions++
		if t.remaining > 0 {
			t.remaining--
		}
		due = append(due, firing{t: t, f: Fire{
			ID:        t.id,
			Payload:   t.payload,
			Execution: t.executions,
			Due:       t.due,
			Last:      t.remaining == 0,
		}})

		if t.remaining == 0 {
			heap.Pop(&s.queue)
			delete(s.timers, t.id)
			continue
		}
		// Nominal start-to-start spacing.
		t.due = t.due.Add(t.interval)
		heap.Fix(&s.queue, t.index)
	}
	s.rearmLocked(now)
	s.mu.Unlock()

	for _, d := range due {
		s.run(d.t, d.f)
	}
}

// run starts one execution according to the record's overlap policy.
func (s *Scheduler) run(t *timer, f Fire) {
	switch t.overlap {
	case OverlapSkip:
		if !t.running.CompareAndSwap(0, 1) {
			s.logger.Debug("execution skipped, previous still running",
				slog.String("timer_id", t.id),
				slog.Int("execution", f.Execution),
			)
			return
		}
		go s.invoke(t, f)

	case OverlapQueue:
		t.qmu.Lock()
		t.pending = append(t.pending, f)
		start := !t.draining
		t.draining = true
		t.qmu.Unlock()
		if start {
			go s.drain(t)
		}

	default:
		t.running.Add(1)
		go s.invoke(t, f)
	}
}

// drain runs queued executions of t in order.
func (s *Scheduler) drain(t *timer) {
	for {
		t.qmu.Lock()
		if len(t.pending) == 0 {
			t.draining = false
			t.qmu.Unlock()
			return
		}
		f := t.pending[0]
		t.pending = t.pending[1:]
		t.qmu.Unlock()

		t.running.Add(1)
		s.invoke(t, f)
	}
}

// invoke calls the record's callback with panic recovery.
func (s *Scheduler) invoke(t *timer, f Fire) {
	defer t.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timer callback panicked",
				slog.String("timer_id", t.id),
				slog.Int("execution", f.Execution),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	t.callback(s.ctx, f)
}
