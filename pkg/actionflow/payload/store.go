package payload

import (
	"errors"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/randalmurphal/actionflow/pkg/actionflow/registry"
)

// ErrFrozen is returned when writing the request slot of a frozen entry.
var ErrFrozen = errors.New("payload frozen")

// DefaultHistorySize is the number of history records kept per entry.
const DefaultHistorySize = 10

// Status is the lifecycle position of the last call.
type Status string

// Entry statuses.
const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Meta is per-entry bookkeeping.
type Meta struct {
	RequestCount     int       `json:"request_count"`
	ResponseCount    int       `json:"response_count"`
	LastRequestTime  time.Time `json:"last_request_time,omitzero"`
	LastResponseTime time.Time `json:"last_response_time,omitzero"`
	Status           Status    `json:"status"`
	LastError        string    `json:"last_error,omitempty"`
}

// Entry is a copy of one channel's slots.
type Entry struct {
	ID     string `json:"id"`
	Req    any    `json:"req,omitempty"`
	Res    any    `json:"res,omitempty"`
	Meta   Meta   `json:"meta"`
	Frozen bool   `json:"frozen,omitempty"`
}

// Kind labels a history record.
type Kind string

// History record kinds.
const (
	KindRequest  Kind = "req"
	KindResponse Kind = "res"
	KindError    Kind = "error"
)

// Record is one history item.
type Record struct {
	Kind  Kind      `json:"kind"`
	Value any       `json:"value,omitempty"`
	At    time.Time `json:"at"`
}

type slot struct {
	mu      sync.Mutex
	entry   Entry
	history []Record
	next    int
	full    bool
}

// Store holds payload entries keyed by channel id.
// It is safe for concurrent use.
type Store struct {
	clock       clock.PassiveClock
	historySize int
	slots       registry.Store[string, *slot]
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for metadata timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithHistorySize sets how many records History keeps per entry.
// Zero disables history.
func WithHistorySize(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.historySize = n
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:       clock.RealClock{},
		historySize: DefaultHistorySize,
		slots:       registry.NewMemory[string, *slot](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) slot(id string) *slot {
	return s.slots.GetOrCreate(id, func() *slot {
		return &slot{entry: Entry{ID: id, Meta: Meta{Status: StatusIdle}}}
	})
}

// SetReq stores the request payload. Frozen entries return ErrFrozen and
// keep their previous value.
func (s *Store) SetReq(id string, v any) error {
	sl := s.slot(id)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.entry.Frozen {
		return ErrFrozen
	}
	now := s.clock.Now()
	sl.entry.Req = v
	sl.entry.Meta.RequestCount++
	sl.entry.Meta.LastRequestTime = now
	s.recordLocked(sl, Record{Kind: KindRequest, Value: v, At: now})
	return nil
}

// MarkPending flags the entry as having a call in flight. It reports false
// and does nothing when the entry does not exist.
func (s *Store) MarkPending(id string) bool {
	sl, ok := s.slots.Get(id)
	if !ok {
		return false
	}
	sl.mu.Lock()
	sl.entry.Meta.Status = StatusPending
	sl.mu.Unlock()
	return true
}

// SetRes stores a handler result and marks the entry completed. Responses
// only land on an existing entry: a call that finishes after Delete or
// Clear reports false and leaves the store untouched.
func (s *Store) SetRes(id string, v any) bool {
	sl, ok := s.slots.Get(id)
	if !ok {
		return false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := s.clock.Now()
	sl.entry.Res = v
	sl.entry.Meta.ResponseCount++
	sl.entry.Meta.LastResponseTime = now
	sl.entry.Meta.Status = StatusCompleted
	sl.entry.Meta.LastError = ""
	s.recordLocked(sl, Record{Kind: KindResponse, Value: v, At: now})
	return true
}

// SetFailed records a handler failure. The response slot is kept. Like
// SetRes it never creates an entry.
func (s *Store) SetFailed(id string, err error) bool {
	sl, ok := s.slots.Get(id)
	if !ok {
		return false
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := s.clock.Now()
	sl.entry.Meta.Status = StatusFailed
	sl.entry.Meta.LastError = msg
	sl.entry.Meta.LastResponseTime = now
	s.recordLocked(sl, Record{Kind: KindError, Value: msg, At: now})
	return true
}

// recordLocked appends to the history ring. Caller holds sl.mu.
func (s *Store) recordLocked(sl *slot, r Record) {
	if s.historySize == 0 {
		return
	}
	if sl.history == nil {
		sl.history = make([]Record, s.historySize)
	}
	sl.history[sl.next] = r
	sl.next = (sl.next + 1) % len(sl.history)
	if sl.next == 0 {
		sl.full = true
	}
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	sl, ok := s.slots.Get(id)
	if !ok {
		return Entry{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.entry, true
}

// Req returns the stored request payload.
func (s *Store) Req(id string) (any, bool) {
	e, ok := s.Get(id)
	if !ok || e.Meta.RequestCount == 0 && e.Req == nil {
		return nil, false
	}
	return e.Req, true
}

// Res returns the stored response payload.
func (s *Store) Res(id string) (any, bool) {
	e, ok := s.Get(id)
	if !ok || e.Meta.ResponseCount == 0 {
		return nil, false
	}
	return e.Res, true
}

// Freeze makes the request slot read-only, creating the entry if needed.
func (s *Store) Freeze(id string) {
	sl := s.slot(id)
	sl.mu.Lock()
	sl.entry.Frozen = true
	sl.mu.Unlock()
}

// Unfreeze makes the request slot writable again.
func (s *Store) Unfreeze(id string) {
	sl, ok := s.slots.Get(id)
	if !ok {
		return
	}
	sl.mu.Lock()
	sl.entry.Frozen = false
	sl.mu.Unlock()
}

// IsFrozen reports whether the entry is frozen.
func (s *Store) IsFrozen(id string) bool {
	e, ok := s.Get(id)
	return ok && e.Frozen
}

// History returns the retained records for id, oldest first.
func (s *Store) History(id string) []Record {
	sl, ok := s.slots.Get(id)
	if !ok {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if !sl.full {
		return append([]Record(nil), sl.history[:sl.next]...)
	}
	out := make([]Record, 0, len(sl.history))
	out = append(out, sl.history[sl.next:]...)
	return append(out, sl.history[:sl.next]...)
}

// Delete removes the entry for id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	return s.slots.Delete(id)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.slots.Clear()
}

// IDs returns the ids of all entries.
func (s *Store) IDs() []string {
	return s.slots.Keys()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return s.slots.Len()
}

// Snapshot copies every entry. History is not included.
func (s *Store) Snapshot() map[string]Entry {
	out := make(map[string]Entry, s.slots.Len())
	s.slots.Range(func(id string, sl *slot) bool {
		sl.mu.Lock()
		out[id] = sl.entry
		sl.mu.Unlock()
		return true
	})
	return out
}

// Restore replaces the entries named in entries. Other entries are kept.
func (s *Store) Restore(entries map[string]Entry) {
	for id, e := range entries {
		e.ID = id
		if e.Meta.Status == "" {
			e.Meta.Status = StatusIdle
		}
		s.slots.Set(id, &slot{entry: e})
	}
}
