// Package observability provides structured logging, metrics and tracing
// for actionflow engines.
//
// Logging uses slog; metrics and tracing use OpenTelemetry through the
// global providers. Metrics and tracing are opt-in and fall back to no-op
// implementations.
package observability

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// EnrichLogger adds call context to a logger.
// Returns a new logger with channel_id, call_id and execution fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "user.save", callID, 1)
//	enriched.Info("saving") // includes channel_id, call_id, execution
func EnrichLogger(logger *slog.Logger, channelID, callID string, execution int64) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("channel_id", channelID),
		slog.String("call_id", callID),
		slog.Int64("execution", execution),
	)
}

// LogCallRejected logs a call stopped by the protection gate.
func LogCallRejected(logger *slog.Logger, channelID, reason string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := []any{
		slog.String("channel_id", channelID),
		slog.String("reason", reason),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.Debug("call rejected", args...)
}

// LogCallSkipped logs a call stopped by a processing talent.
func LogCallSkipped(logger *slog.Logger, channelID, talent, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("call skipped",
		slog.String("channel_id", channelID),
		slog.String("talent", talent),
		slog.String("reason", reason),
	)
}

// LogTalentError logs a processing talent failure.
func LogTalentError(logger *slog.Logger, channelID, talent string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("talent failed",
		slog.String("channel_id", channelID),
		slog.String("talent", talent),
		slog.String("error", err.Error()),
	)
}

// LogCallScheduled logs a call handed to the scheduler.
func LogCallScheduled(logger *slog.Logger, channelID string, delay, interval time.Duration, repeat string) {
	if logger == nil {
		return
	}
	logger.Debug("call scheduled",
		slog.String("channel_id", channelID),
		slog.Duration("delay", delay),
		slog.Duration("interval", interval),
		slog.String("repeat", repeat),
	)
}

// LogDispatchComplete logs a successful handler invocation.
func LogDispatchComplete(logger *slog.Logger, channelID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch completed",
		slog.String("channel_id", channelID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDispatchError logs a handler failure.
func LogDispatchError(logger *slog.Logger, channelID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("dispatch failed",
		slog.String("channel_id", channelID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogChain logs a chain reaction from one channel into another.
func LogChain(logger *slog.Logger, fromID, toID string) {
	if logger == nil {
		return
	}
	logger.Debug("chain reaction",
		slog.String("channel_id", fromID),
		slog.String("next_channel_id", toID),
	)
}

// LogSnapshot logs a saved or loaded snapshot.
func LogSnapshot(logger *slog.Logger, op, name string, entries int) {
	if logger == nil {
		return
	}
	logger.Info("snapshot "+op,
		slog.String("snapshot", name),
		slog.Int("entries", entries),
	)
}

// LogSnapshotError logs a snapshot failure (non-fatal).
func LogSnapshotError(logger *slog.Logger, op, name string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		slog.String("snapshot", name),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation on the given clock.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation(clk)
//	// ... do work ...
//	elapsed := done()
func TimedOperation(c clock.PassiveClock) func() time.Duration {
	if c == nil {
		c = clock.RealClock{}
	}
	start := c.Now()
	return func() time.Duration {
		return c.Since(start)
	}
}

// Milliseconds converts d to fractional milliseconds for log fields.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
