package schedule

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduling.
var (
	// ErrInvalidEntry indicates a missing id or callback.
	ErrInvalidEntry = errors.New("invalid schedule entry")

	// ErrInvalidDuration indicates a negative delay or interval.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidRepeat indicates an unusable repeat specification.
	ErrInvalidRepeat = errors.New("invalid repeat")

	// ErrClosed indicates the scheduler has been closed.
	ErrClosed = errors.New("scheduler closed")
)

// SchedulingError wraps a registration failure with the timer id.
type SchedulingError struct {
	// ID is the timer id that failed to register.
	ID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule %q: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SchedulingError) Unwrap() error {
	return e.Err
}
