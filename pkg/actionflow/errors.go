package actionflow

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for protection. These are soft rejections: the call was
// valid but not executed now.
var (
	// ErrBlocked indicates the channel is configured with Block.
	ErrBlocked = errors.New("blocked")

	// ErrThrottled indicates the channel ran more recently than its throttle.
	ErrThrottled = errors.New("throttled")

	// ErrDebounced indicates the call was absorbed into a debounce burst.
	ErrDebounced = errors.New("debounced")

	// ErrRecuperating indicates the system is recuperating and the channel
	// is not critical.
	ErrRecuperating = errors.New("system recuperating")
)

// Sentinel errors for processing. ErrConditionNotMet and ErrPayloadUnchanged
// are soft skips; the others are hard failures.
var (
	// ErrConditionNotMet indicates the channel condition returned false.
	ErrConditionNotMet = errors.New("condition not met")

	// ErrPayloadUnchanged indicates change detection found the same payload.
	ErrPayloadUnchanged = errors.New("payload unchanged")

	// ErrValidationFailed indicates the required or schema talent rejected
	// the payload.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSelectorFailed indicates the selector returned an error or panicked.
	ErrSelectorFailed = errors.New("selector failed")

	// ErrTransformFailed indicates the transform returned an error or panicked.
	ErrTransformFailed = errors.New("transform failed")
)

// Sentinel errors for dispatch and registration.
var (
	// ErrNoSubscriber indicates no handler is registered for the channel.
	ErrNoSubscriber = errors.New("no subscriber")

	// ErrHandlerFailed indicates the handler returned an error or panicked.
	ErrHandlerFailed = errors.New("handler failed")

	// ErrSchedulingFailed indicates the scheduler refused the channel timing.
	ErrSchedulingFailed = errors.New("scheduling failed")

	// ErrChannelNotFound indicates Call was made for an unknown channel id.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNotCallable indicates the channel failed to compile.
	ErrNotCallable = errors.New("channel not callable")

	// ErrInvalidAction indicates an action or handler registration was rejected.
	ErrInvalidAction = errors.New("invalid action")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// CompileError lists every problem found while compiling a channel.
type CompileError struct {
	// ChannelID is the channel that failed to compile.
	ChannelID string
	// Errs are the individual problems.
	Errs []error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile channel %q: %v", e.ChannelID, errors.Join(e.Errs...))
}

// Unwrap returns ErrInvalidAction and the individual problems.
func (e *CompileError) Unwrap() []error {
	return append([]error{ErrInvalidAction}, e.Errs...)
}

// TalentError wraps a hard failure inside a processing talent.
type TalentError struct {
	// ChannelID is the channel being processed.
	ChannelID string
	// Talent is the failing talent.
	Talent Talent
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TalentError) Error() string {
	return fmt.Sprintf("channel %s: %s: %v", e.ChannelID, e.Talent, e.Err)
}

// Unwrap returns the talent's sentinel, when it has one, and the underlying error.
func (e *TalentError) Unwrap() []error {
	var kind error
	switch e.Talent {
	case TalentRequired, TalentSchema:
		kind = ErrValidationFailed
	case TalentSelector:
		kind = ErrSelectorFailed
	case TalentTransform:
		kind = ErrTransformFailed
	}
	if kind == nil {
		return []error{e.Err}
	}
	return []error{kind, e.Err}
}

// HandlerError wraps an error returned or raised by a channel handler.
type HandlerError struct {
	// ChannelID is the dispatched channel.
	ChannelID string
	// Err is the handler's error, or a *PanicError.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("channel %s: handler: %v", e.ChannelID, e.Err)
}

// Unwrap returns ErrHandlerFailed and the handler's error.
func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailed, e.Err}
}

// PanicError captures a panic raised by user code.
// It includes the stack trace for debugging.
type PanicError struct {
	// ChannelID is the channel whose code panicked.
	ChannelID string
	// Stage is the talent name or "handler".
	Stage string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("channel %s: %s panicked: %v", e.ChannelID, e.Stage, e.Value)
}

// ThrottleError reports how long a throttled caller should wait.
type ThrottleError struct {
	ChannelID string
	Remaining time.Duration
}

// Error implements the error interface.
func (e *ThrottleError) Error() string {
	return fmt.Sprintf("channel %s throttled: retry in %s", e.ChannelID, e.Remaining)
}

// Unwrap returns ErrThrottled for errors.Is support.
func (e *ThrottleError) Unwrap() error {
	return ErrThrottled
}
