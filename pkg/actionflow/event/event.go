package event

import (
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

// Event types published by the engine.
const (
	TypeCall         Type = "call"
	TypeBlocked      Type = "blocked"
	TypeThrottled    Type = "throttled"
	TypeDebounced    Type = "debounced"
	TypeRecuperating Type = "recuperating"
	TypeSkipped      Type = "skipped"
	TypeScheduled    Type = "scheduled"
	TypeDispatch     Type = "dispatch"
	TypeError        Type = "error"
	TypeChain        Type = "chain"
	TypeBreathing    Type = "breathing"
)

// Event is an immutable lifecycle record.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	CallID    string    `json:"call_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// CausationID is the call id that caused this one, set for chain
	// reactions.
	CausationID string `json:"causation_id,omitempty"`

	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Data     any           `json:"data,omitempty"`
}

// Option configures event creation.
type Option func(*Event)

// WithCallID sets the call id.
func WithCallID(id string) Option {
	return func(e *Event) { e.CallID = id }
}

// WithCausationID sets the id of the causing call.
func WithCausationID(id string) Option {
	return func(e *Event) { e.CausationID = id }
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// WithMessage sets a human readable message.
func WithMessage(msg string) Option {
	return func(e *Event) { e.Message = msg }
}

// WithError records an error message. Nil errors are ignored.
func WithError(err error) Option {
	return func(e *Event) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// WithDuration records how long the step took.
func WithDuration(d time.Duration) Option {
	return func(e *Event) { e.Duration = d }
}

// WithData attaches arbitrary data.
func WithData(v any) Option {
	return func(e *Event) { e.Data = v }
}

// New creates an event with a random id.
func New(typ Type, channelID string, opts ...Option) Event {
	e := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ChannelID: channelID,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
