package types

import (
	"fmt"
	"time"
)

// RetryKind selects the retry policy applied to failed nodes.
type RetryKind string

const (
	RetryNone    RetryKind = "none"
	RetryFixed   RetryKind = "fixed"
	RetryBackoff RetryKind = "backoff"
)

// RetryPolicy controls re-dispatch of failed nodes. Attempts is the number of
// retries after the first execution; Base is the initial backoff interval and
// is ignored for fixed retries.
type RetryPolicy struct {
	Kind     RetryKind
	Attempts int
	Base     time.Duration
}

// BackpressurePolicy selects what the progress reporter does when its event
// buffer is full.
type BackpressurePolicy string

const (
	// BlockProducer blocks the publisher until a consumer drains an event.
	BlockProducer BackpressurePolicy = "block"
	// DropOldest evicts the oldest buffered event to make room.
	DropOldest BackpressurePolicy = "drop-oldest"
)

// ExecutionConfig holds the recognized per-run options. Zero-value fields are
// filled in by Normalize; Validate rejects impossible combinations before any
// node is dispatched.
type ExecutionConfig struct {
	MaxConcurrency          int
	MinConcurrency          int
	GlobalTimeout           time.Duration // 0 = no whole-run deadline
	PerTestTimeoutDefault   time.Duration
	GracePeriod             time.Duration // wait after cooperative cancellation before the slot is reclaimed
	Retry                   RetryPolicy
	SkipOnDependencyFailure bool

	// Progress stream tuning.
	ProgressBufferSize   int
	ProgressBackpressure BackpressurePolicy

	// Resource sampling knobs for the concurrency controller.
	SampleInterval time.Duration
	HighWatermark  float64 // utilization fraction above which the limit shrinks
	LowWatermark   float64 // utilization fraction below which low samples accumulate
	GrowAfter      int     // consecutive low samples required before the limit grows
	AdjustCooldown time.Duration
}

// DefaultExecutionConfig returns the configuration used when callers do not
// override anything.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		MaxConcurrency:          8,
		MinConcurrency:          1,
		PerTestTimeoutDefault:   30 * time.Second,
		GracePeriod:             5 * time.Second,
		Retry:                   RetryPolicy{Kind: RetryNone},
		SkipOnDependencyFailure: true,
		ProgressBufferSize:      256,
		ProgressBackpressure:    DropOldest,
		SampleInterval:          2 * time.Second,
		HighWatermark:           0.85,
		LowWatermark:            0.50,
		GrowAfter:               3,
		AdjustCooldown:          5 * time.Second,
	}
}

// Normalize fills zero-value fields with their defaults. It does not touch
// fields the caller set explicitly.
func (c *ExecutionConfig) Normalize() {
	d := DefaultExecutionConfig()
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.MinConcurrency == 0 {
		c.MinConcurrency = d.MinConcurrency
	}
	if c.PerTestTimeoutDefault == 0 {
		c.PerTestTimeoutDefault = d.PerTestTimeoutDefault
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.Retry.Kind == "" {
		c.Retry.Kind = RetryNone
	}
	if c.ProgressBufferSize == 0 {
		c.ProgressBufferSize = d.ProgressBufferSize
	}
	if c.ProgressBackpressure == "" {
		c.ProgressBackpressure = d.ProgressBackpressure
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = d.SampleInterval
	}
	if c.HighWatermark == 0 {
		c.HighWatermark = d.HighWatermark
	}
	if c.LowWatermark == 0 {
		c.LowWatermark = d.LowWatermark
	}
	if c.GrowAfter == 0 {
		c.GrowAfter = d.GrowAfter
	}
	if c.AdjustCooldown == 0 {
		c.AdjustCooldown = d.AdjustCooldown
	}
}

// ConfigError reports an invalid ExecutionConfig field. Fatal at startup;
// nothing is dispatched when Validate fails.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Validate checks the configuration. Callers should Normalize first.
func (c *ExecutionConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return &ConfigError{Field: "max_concurrency", Reason: "must be at least 1"}
	}
	if c.MinConcurrency < 1 {
		return &ConfigError{Field: "min_concurrency", Reason: "must be at least 1"}
	}
	if c.MinConcurrency > c.MaxConcurrency {
		return &ConfigError{Field: "min_concurrency", Reason: fmt.Sprintf("must not exceed max_concurrency (%d)", c.MaxConcurrency)}
	}
	if c.GlobalTimeout < 0 {
		return &ConfigError{Field: "global_timeout", Reason: "must not be negative"}
	}
	if c.PerTestTimeoutDefault <= 0 {
		return &ConfigError{Field: "per_test_timeout_default", Reason: "must be positive"}
	}
	if c.GracePeriod <= 0 {
		return &ConfigError{Field: "grace_period", Reason: "must be positive"}
	}
	switch c.Retry.Kind {
	case RetryNone:
	case RetryFixed:
		if c.Retry.Attempts < 1 {
			return &ConfigError{Field: "retry_policy", Reason: "fixed retry requires at least 1 attempt"}
		}
	case RetryBackoff:
		if c.Retry.Attempts < 1 {
			return &ConfigError{Field: "retry_policy", Reason: "backoff retry requires at least 1 attempt"}
		}
		if c.Retry.Base <= 0 {
			return &ConfigError{Field: "retry_policy", Reason: "backoff retry requires a positive base interval"}
		}
	default:
		return &ConfigError{Field: "retry_policy", Reason: fmt.Sprintf("unknown kind %q", c.Retry.Kind)}
	}
	switch c.ProgressBackpressure {
	case BlockProducer, DropOldest:
	default:
		return &ConfigError{Field: "progress_backpressure", Reason: fmt.Sprintf("unknown policy %q", c.ProgressBackpressure)}
	}
	if c.SampleInterval <= 0 {
		return &ConfigError{Field: "sample_interval", Reason: "must be positive"}
	}
	if c.AdjustCooldown < 0 {
		return &ConfigError{Field: "adjust_cooldown", Reason: "must not be negative"}
	}
	if c.GrowAfter < 1 {
		return &ConfigError{Field: "grow_after", Reason: "must be at least 1"}
	}
	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		return &ConfigError{Field: "high_watermark", Reason: "must be in (0, 1]"}
	}
	if c.LowWatermark <= 0 || c.LowWatermark >= c.HighWatermark {
		return &ConfigError{Field: "low_watermark", Reason: "must be positive and below high_watermark"}
	}
	return nil
}
