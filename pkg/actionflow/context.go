package actionflow

import (
	"context"
	"log/slog"
)

// Context is passed to handlers.
// It extends context.Context with the logger and call metadata.
//
// Context is immutable. The dispatcher creates one per handler invocation.
type Context interface {
	context.Context

	// Logger returns the engine logger enriched with channel_id, call_id
	// and execution. Never returns nil.
	Logger() *slog.Logger

	// ChannelID returns the channel being dispatched.
	ChannelID() string

	// CallID returns the unique id of this invocation.
	CallID() string

	// Execution returns the channel's 1-based execution number.
	Execution() int64

	// Scheduled reports whether the invocation came from a timer.
	Scheduled() bool
}

// dispatchContext is the internal implementation of Context.
type dispatchContext struct {
	context.Context

	logger    *slog.Logger
	channelID string
	callID    string
	execution int64
	scheduled bool
}

func (c *dispatchContext) Logger() *slog.Logger { return c.logger }
func (c *dispatchContext) ChannelID() string    { return c.channelID }
func (c *dispatchContext) CallID() string       { return c.callID }
func (c *dispatchContext) Execution() int64     { return c.execution }
func (c *dispatchContext) Scheduled() bool      { return c.scheduled }

// NewContext wraps ctx for calling a Handler directly, for example in tests.
// The logger defaults to slog.Default().
func NewContext(ctx context.Context, channelID, callID string, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatchContext{
		Context:   ctx,
		logger:    logger,
		channelID: channelID,
		callID:    callID,
		execution: 1,
	}
}
