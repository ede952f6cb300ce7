package event

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// Handler receives delivered events.
type Handler func(ctx context.Context, evt Event)

// Bus fans engine events out to subscribers.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(types []Type, handler Handler) Subscription
	SubscribeAll(handler Handler) Subscription
	Close() error
}

// Subscription is one registered handler.
type Subscription interface {
	// Unsubscribe removes the subscription. It is idempotent.
	Unsubscribe()

	// Pause discards events until Resume.
	Pause()
	Resume()
	IsPaused() bool
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the queue length per subscriber. Default 256.
	BufferSize int

	// MaxSubscribers caps live subscriptions. Zero means no cap.
	MaxSubscribers int

	// NonBlocking drops an event for a subscriber whose queue is full
	// instead of waiting.
	NonBlocking bool

	// OnDrop is called for every dropped delivery.
	OnDrop func(evt Event, subscriberID string)
}

// DefaultBufferSize is the per-subscriber queue length when none is set.
const DefaultBufferSize = 256

// LocalBus delivers events in process. Each subscriber has its own queue and
// goroutine, so a slow subscriber only delays itself. Publish reads an
// immutable subscriber list and takes no lock.
type LocalBus struct {
	cfg BusConfig

	mu   sync.Mutex // serializes changes to subs
	subs atomic.Pointer[[]*subscription]

	seq     atomic.Int64
	dropped atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

var _ Bus = (*LocalBus)(nil)

// NewBus creates a LocalBus.
func NewBus(cfg BusConfig) *LocalBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	b := &LocalBus{cfg: cfg, closeCh: make(chan struct{})}
	b.subs.Store(&[]*subscription{})
	return b
}

type subscription struct {
	id     string
	types  map[Type]struct{} // nil matches every type
	fn     Handler
	queue  chan Event
	paused atomic.Bool
	done   chan struct{}
	once   sync.Once
	bus    *LocalBus
}

func (s *subscription) wants(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Publish queues evt for every matching, unpaused subscriber. In blocking
// mode it waits for queue space until ctx is done or the bus closes.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	for _, s := range *b.subs.Load() {
		if !s.wants(evt.Type) || s.paused.Load() {
			continue
		}
		if b.cfg.NonBlocking {
			select {
			case s.queue <- evt:
			default:
				b.drop(evt, s)
			}
			continue
		}
		select {
		case s.queue <- evt:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}
	return nil
}

func (b *LocalBus) drop(evt Event, s *subscription) {
	b.dropped.Add(1)
	if b.cfg.OnDrop != nil {
		b.cfg.OnDrop(evt, s.id)
	}
}

// Dropped returns how many deliveries were dropped in non-blocking mode.
func (b *LocalBus) Dropped() int64 {
	return b.dropped.Load()
}

// Subscribers returns the number of live subscriptions.
func (b *LocalBus) Subscribers() int {
	return len(*b.subs.Load())
}

// Subscribe registers handler for the given types; no types means all.
// It returns nil when the bus is closed, full or handler is nil.
func (b *LocalBus) Subscribe(types []Type, handler Handler) Subscription {
	if s := b.add(types, handler); s != nil {
		return s
	}
	return nil
}

// SubscribeAll registers handler for every event type.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.Subscribe(nil, handler)
}

func (b *LocalBus) add(types []Type, handler Handler) *subscription {
	if handler == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return nil
	}
	cur := *b.subs.Load()
	if b.cfg.MaxSubscribers > 0 && len(cur) >= b.cfg.MaxSubscribers {
		return nil
	}

	s := &subscription{
		id:    strconv.FormatInt(b.seq.Add(1), 10),
		fn:    handler,
		queue: make(chan Event, b.cfg.BufferSize),
		done:  make(chan struct{}),
		bus:   b,
	}
	if len(types) > 0 {
		s.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	next := append(slices.Clip(cur), s)
	b.subs.Store(&next)
	go s.run()
	return s
}

func (b *LocalBus) remove(s *subscription) {
	b.mu.Lock()
	cur := *b.subs.Load()
	if i := slices.Index(cur, s); i >= 0 {
		next := slices.Delete(slices.Clone(cur), i, i+1)
		b.subs.Store(&next)
	}
	b.mu.Unlock()
}

// Close stops every subscriber. Queued events that were not yet handled
// are discarded. It is idempotent.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)
	for _, s := range *b.subs.Load() {
		s.stop()
	}
	b.subs.Store(&[]*subscription{})
	return nil
}

func (s *subscription) run() {
	for {
		select {
		case evt := <-s.queue:
			if !s.paused.Load() {
				s.fn(context.Background(), evt)
			}
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s)
	s.stop()
}

func (s *subscription) Pause()         { s.paused.Store(true) }
func (s *subscription) Resume()        { s.paused.Store(false) }
func (s *subscription) IsPaused() bool { return s.paused.Load() }
