package actionflow

import (
	"log/slog"

	"k8s.io/utils/clock"

	"github.com/randalmurphal/actionflow/pkg/actionflow/breathing"
	"github.com/randalmurphal/actionflow/pkg/actionflow/config"
	"github.com/randalmurphal/actionflow/pkg/actionflow/event"
	"github.com/randalmurphal/actionflow/pkg/actionflow/expr"
	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
	"github.com/randalmurphal/actionflow/pkg/actionflow/registry"
)

// engineConfig holds construction settings.
type engineConfig struct {
	clock          clock.WithDelayedExecution
	logger         *slog.Logger
	metrics        bool
	tracing        bool
	breathing      breathing.Config
	historySize    int
	bus            event.Bus
	exprs          *expr.Compiler
	channels       registry.Store[string, *Channel]
	handlers       registry.Store[string, Handler]
	startBreathing bool
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		clock:          clock.RealClock{},
		logger:         slog.Default(),
		breathing:      breathing.DefaultConfig(),
		historySize:    payload.DefaultHistorySize,
		startBreathing: true,
	}
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithClock sets the clock driving timers, throttle and breathing.
// Tests pass a k8s.io/utils/clock/testing.FakeClock.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(cfg *engineConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
// Default: disabled.
func WithMetrics(enabled bool) Option {
	return func(cfg *engineConfig) {
		cfg.metrics = enabled
	}
}

// WithTracing enables OpenTelemetry spans through the global tracer provider.
// Default: disabled.
func WithTracing(enabled bool) Option {
	return func(cfg *engineConfig) {
		cfg.tracing = enabled
	}
}

// WithBreathing sets the breathing monitor thresholds. Zero fields take
// their defaults; an invalid config is logged and replaced by the defaults.
func WithBreathing(c breathing.Config) Option {
	return func(cfg *engineConfig) {
		cfg.breathing = c
	}
}

// WithBreathingLoop controls whether New starts the monitor's evaluation
// loop. Default: true. Without the loop stress is still re-evaluated on
// every recorded sample and by GetBreathingState.
func WithBreathingLoop(enabled bool) Option {
	return func(cfg *engineConfig) {
		cfg.startBreathing = enabled
	}
}

// WithHistorySize sets the payload history ring size per channel.
// Zero disables history.
func WithHistorySize(n int) Option {
	return func(cfg *engineConfig) {
		if n >= 0 {
			cfg.historySize = n
		}
	}
}

// WithEventBus publishes lifecycle events to bus. Publishing is best effort;
// use a non-blocking bus so a slow subscriber never delays a call.
func WithEventBus(bus event.Bus) Option {
	return func(cfg *engineConfig) {
		cfg.bus = bus
	}
}

// WithExpressionCompiler sets the compiler for When expressions, for
// example one with custom operators.
func WithExpressionCompiler(c *expr.Compiler) Option {
	return func(cfg *engineConfig) {
		cfg.exprs = c
	}
}

// WithChannelStore sets the channel registry. Default: registry.NewMemory.
func WithChannelStore(s registry.Store[string, *Channel]) Option {
	return func(cfg *engineConfig) {
		cfg.channels = s
	}
}

// WithHandlerStore sets the handler registry. Default: registry.NewMemory.
func WithHandlerStore(s registry.Store[string, Handler]) Option {
	return func(cfg *engineConfig) {
		cfg.handlers = s
	}
}

// WithManifest applies a manifest's engine settings: breathing and history
// size. Channels are registered separately with ApplyManifest.
func WithManifest(m config.Manifest) Option {
	return func(cfg *engineConfig) {
		cfg.breathing = m.Breathing
		if m.HistorySize >= 0 {
			cfg.historySize = m.HistorySize
		}
	}
}
