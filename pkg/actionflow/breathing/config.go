package breathing

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates unusable monitor settings.
var ErrInvalidConfig = errors.New("invalid breathing config")

// Config holds the monitor thresholds and cadence.
// Zero fields take their DefaultConfig value.
type Config struct {
	// HighWater is the stress at which recuperation starts.
	HighWater float64 `json:"high_water" yaml:"high_water"`
	// LowWater is the stress below which recuperation ends.
	LowWater float64 `json:"low_water" yaml:"low_water"`

	// Window is the maximum age of a sample.
	Window time.Duration `json:"window" yaml:"window"`
	// MaxSamples bounds the window by count.
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
	// MinSamples is the sample count below which stress is 0.
	MinSamples int `json:"min_samples" yaml:"min_samples"`

	// SlowThreshold is the average latency that counts as full stress.
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold"`

	// BaseRate is the evaluation interval at zero stress.
	BaseRate time.Duration `json:"base_rate" yaml:"base_rate"`
	// MaxRate is the evaluation interval at full stress.
	MaxRate time.Duration `json:"max_rate" yaml:"max_rate"`
	// RecoveryRate is the evaluation interval while recuperating.
	RecoveryRate time.Duration `json:"recovery_rate" yaml:"recovery_rate"`
}

// DefaultConfig returns the default monitor settings.
func DefaultConfig() Config {
	return Config{
		HighWater:     0.9,
		LowWater:      0.5,
		Window:        10 * time.Second,
		MaxSamples:    100,
		MinSamples:    5,
		SlowThreshold: 500 * time.Millisecond,
		BaseRate:      200 * time.Millisecond,
		MaxRate:       time.Second,
		RecoveryRate:  2 * time.Second,
	}
}

// WithDefaults returns c with zero fields filled from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.HighWater == 0 {
		c.HighWater = d.HighWater
	}
	if c.LowWater == 0 {
		c.LowWater = d.LowWater
	}
	if c.Window == 0 {
		c.Window = d.Window
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = d.MaxSamples
	}
	if c.MinSamples == 0 {
		c.MinSamples = d.MinSamples
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = d.SlowThreshold
	}
	if c.BaseRate == 0 {
		c.BaseRate = d.BaseRate
	}
	if c.MaxRate == 0 {
		c.MaxRate = d.MaxRate
	}
	if c.RecoveryRate == 0 {
		c.RecoveryRate = d.RecoveryRate
	}
	return c
}

// Validate checks the settings after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	if c.HighWater <= 0 || c.HighWater > 1 {
		errs = append(errs, fmt.Errorf("high water %v must be in (0, 1]", c.HighWater))
	}
	if c.LowWater < 0 || c.LowWater > c.HighWater {
		errs = append(errs, fmt.Errorf("low water %v must be in [0, high water]", c.LowWater))
	}
	if c.Window < 0 || c.SlowThreshold < 0 || c.BaseRate < 0 || c.MaxRate < 0 || c.RecoveryRate < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.MaxRate < c.BaseRate {
		errs = append(errs, fmt.Errorf("max rate %s is below base rate %s", c.MaxRate, c.BaseRate))
	}
	if c.MaxSamples < 0 || c.MinSamples < 0 {
		errs = append(errs, errors.New("sample counts must not be negative"))
	}
	if c.MinSamples > c.MaxSamples {
		errs = append(errs, fmt.Errorf("min samples %d exceeds max samples %d", c.MinSamples, c.MaxSamples))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
