package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/actionflow/pkg/actionflow/breathing"
	"github.com/randalmurphal/actionflow/pkg/actionflow/payload"
	"github.com/randalmurphal/actionflow/pkg/actionflow/schedule"
)

// ErrInvalidManifest indicates a manifest that cannot be turned into channels.
var ErrInvalidManifest = errors.New("invalid manifest")

func errUnsupported(key string, v any) error {
	return fmt.Errorf("%s: unsupported value %v (%T)", key, v, v)
}

// Manifest declares engine tunables and channels in a file.
//
//	history_size: 20
//	breathing:
//	  high_water: 0.8
//	  slow_threshold: 250ms
//	channels:
//	  - id: refresh
//	    interval: 5s
//	    repeat: infinite
//	    handler: refresh
//	  - id: search
//	    debounce: 300
//	    max_wait: 1s
//	    when: "query != ''"
type Manifest struct {
	// HistorySize is the payload history ring size per channel.
	HistorySize int
	// Breathing holds the monitor settings, defaults filled in.
	Breathing breathing.Config
	// Channels in declaration order.
	Channels []ChannelSpec
}

// ChannelSpec is one declared channel. Functions are referenced by name and
// resolved by the engine when the manifest is applied.
type ChannelSpec struct {
	ID string

	Block    bool
	Throttle time.Duration
	Debounce time.Duration
	MaxWait  time.Duration

	Delay    time.Duration
	Interval time.Duration
	Repeat   schedule.Repeat
	Overlap  string

	Priority      string
	Required      string
	DetectChanges bool
	When          string

	Schema    string
	Selector  string
	Condition string
	Transform string
	Handler   string

	// Payload seeds the channel's request slot.
	Payload any
}

// ParseManifest builds a Manifest from decoded configuration.
// Integer durations are milliseconds; strings use time.ParseDuration syntax.
func ParseManifest(c Config) (Manifest, error) {
	m := Manifest{
		HistorySize: c.Int("history_size", payload.DefaultHistorySize),
	}
	if m.HistorySize < 0 {
		return Manifest{}, fmt.Errorf("%w: negative history_size %d", ErrInvalidManifest, m.HistorySize)
	}

	b, err := parseBreathing(c.Sub("breathing"))
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: breathing: %w", ErrInvalidManifest, err)
	}
	m.Breathing = b

	if v := c.Any("channels", nil); v != nil {
		if _, ok := v.([]any); !ok {
			return Manifest{}, fmt.Errorf("%w: channels must be a list", ErrInvalidManifest)
		}
	}

	seen := make(map[string]bool)
	for i, cc := range c.Configs("channels") {
		spec, err := parseChannel(cc)
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: channel %d: %w", ErrInvalidManifest, i, err)
		}
		if seen[spec.ID] {
			return Manifest{}, fmt.Errorf("%w: duplicate channel id %q", ErrInvalidManifest, spec.ID)
		}
		seen[spec.ID] = true
		m.Channels = append(m.Channels, spec)
	}
	return m, nil
}

// Channel returns the declared channel with id.
func (m Manifest) Channel(id string) (ChannelSpec, bool) {
	for _, ch := range m.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelSpec{}, false
}

func parseBreathing(c Config) (breathing.Config, error) {
	cfg := breathing.Config{
		HighWater:  c.Float("high_water", 0),
		LowWater:   c.Float("low_water", 0),
		MaxSamples: c.Int("max_samples", 0),
		MinSamples: c.Int("min_samples", 0),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"window", &cfg.Window},
		{"slow_threshold", &cfg.SlowThreshold},
		{"base_rate", &cfg.BaseRate},
		{"max_rate", &cfg.MaxRate},
		{"recovery_rate", &cfg.RecoveryRate},
	}
	for _, d := range durations {
		v, _, err := c.duration(d.key)
		if err != nil {
			return breathing.Config{}, err
		}
		*d.dst = v
	}

	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

func parseChannel(c Config) (ChannelSpec, error) {
	spec := ChannelSpec{
		ID:            strings.TrimSpace(c.String("id", "")),
		Block:         c.Bool("block", false),
		Overlap:       c.String("overlap", ""),
		Priority:      c.String("priority", ""),
		DetectChanges: c.Bool("detect_changes", false),
		When:          c.String("when", ""),
		Schema:        c.String("schema", ""),
		Selector:      c.String("selector", ""),
		Condition:     c.String("condition", ""),
		Transform:     c.String("transform", ""),
		Handler:       c.String("handler", ""),
		Payload:       c.Any("payload", nil),
	}
	if spec.ID == "" {
		return ChannelSpec{}, errors.New("missing id")
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"throttle", &spec.Throttle},
		{"debounce", &spec.Debounce},
		{"max_wait", &spec.MaxWait},
		{"delay", &spec.Delay},
		{"interval", &spec.Interval},
	}
	for _, d := range durations {
		v, _, err := c.duration(d.key)
		if err != nil {
			return ChannelSpec{}, fmt.Errorf("%s: %w", spec.ID, err)
		}
		*d.dst = v
	}

	repeat, err := schedule.ParseRepeat(c.Any("repeat", nil))
	if err != nil {
		return ChannelSpec{}, fmt.Errorf("%s: %w", spec.ID, err)
	}
	spec.Repeat = repeat

	switch v := c.Any("required", nil).(type) {
	case nil:
	case bool:
		if v {
			spec.Required = "defined"
		}
	case string:
		spec.Required = v
	default:
		return ChannelSpec{}, fmt.Errorf("%s: %w", spec.ID, errUnsupported("required", v))
	}

	return spec, nil
}
