package actionflow

import (
	"time"

	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// Priority orders channels under load. Only PriorityCritical bypasses
// recuperation.
type Priority string

// Priority levels. The empty string is PriorityMedium.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// RequiredMode controls the required talent.
type RequiredMode string

// Required modes.
const (
	// RequiredOff disables the check unless a schema is set.
	RequiredOff RequiredMode = ""
	// RequiredDefined rejects nil payloads.
	RequiredDefined RequiredMode = "defined"
	// RequiredNonEmpty also rejects empty strings, slices, arrays and maps.
	RequiredNonEmpty RequiredMode = "non-empty"
)

func (m RequiredMode) valid() bool {
	switch m {
	case RequiredOff, RequiredDefined, RequiredNonEmpty:
		return true
	}
	return false
}

// SchemaResult is what a SchemaFunc reports.
type SchemaResult struct {
	OK bool
	// Data replaces the payload on success when non-nil.
	Data   any
	Errors []string
}

// SchemaFunc validates and optionally normalizes a payload.
type SchemaFunc func(payload any) SchemaResult

// SchemaFromBool adapts a boolean validator.
func SchemaFromBool(fn func(payload any) bool) SchemaFunc {
	return func(payload any) SchemaResult {
		if fn(payload) {
			return SchemaResult{OK: true}
		}
		return SchemaResult{Errors: []string{"payload rejected by schema"}}
	}
}

// SelectorFunc extracts the part of the payload the handler needs.
type SelectorFunc func(payload any) (any, error)

// ConditionFunc decides whether the call should run. False skips the call.
type ConditionFunc func(payload any) bool

// TransformFunc maps the payload before dispatch.
type TransformFunc func(payload any) (any, error)

// Handler is the function registered for a channel with On.
//
// A handler that returns a Link starts a call on the linked channel:
//
//	func(ctx actionflow.Context, p any) (any, error) {
//	    return actionflow.LinkTo("audit", p), nil
//	}
type Handler func(ctx Context, payload any) (any, error)

// Link is a handler result that chains into another channel.
type Link struct {
	ID      string
	Payload any
}

// LinkTo returns a chain result for channel id.
func LinkTo(id string, payload any) Link {
	return Link{ID: id, Payload: payload}
}

// Action is a channel configuration.
//
// Example:
//
//	err := engine.Action(actionflow.Action{
//	    ID:       "search",
//	    Debounce: 300 * time.Millisecond,
//	    MaxWait:  time.Second,
//	    When:     "query != ''",
//	})
type Action struct {
	// ID is the unique channel key. It must not contain whitespace.
	ID string

	// Protection.
	Block    bool
	Throttle time.Duration
	Debounce time.Duration
	// MaxWait forces execution once a debounce burst is this old.
	MaxWait time.Duration

	// Processing.
	Schema    SchemaFunc
	Required  RequiredMode
	Selector  SelectorFunc
	Condition ConditionFunc
	// When is an expression condition, ANDed with Condition.
	When          string
	Transform     TransformFunc
	DetectChanges bool

	// Scheduling.
	Delay    time.Duration
	Interval time.Duration
	Repeat   schedule.Repeat
	Overlap  schedule.OverlapPolicy

	Priority Priority

	// Payload seeds the channel's request slot on registration.
	Payload any
}

// scheduled reports whether calls hand off to the scheduler.
func (a Action) scheduled() bool {
	return a.Delay > 0 || a.Interval > 0 || a.Repeat.IsNever()
}

// protected reports whether the gate has per-channel work to do.
func (a Action) protected() bool {
	return a.Block || a.Throttle > 0 || a.Debounce > 0
}

// Response is the result of Call.
type Response struct {
	// OK is true when the handler ran successfully or the call was scheduled.
	OK      bool
	Payload any
	Message string
	// Error is true for hard failures. Soft rejections and skips leave it false.
	Error bool
	// Err carries the typed error for any non-OK response.
	Err      error
	Metadata Metadata
}

// Metadata describes how a call was handled.
type Metadata struct {
	CallID        string
	ExecutionTime time.Duration
	// IntraLink is the channel a chain reaction was started on.
	IntraLink string
	Scheduled bool
	Interval  time.Duration
	Delay     time.Duration
	Repeat    schedule.Repeat
	// RemainingWait is set on throttled and debounced responses.
	RemainingWait time.Duration
}
