package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionConfig_DefaultsValidate(t *testing.T) {
	cfg := DefaultExecutionConfig()
	require.NoError(t, cfg.Validate())
}

func TestExecutionConfig_NormalizeFillsZeroFields(t *testing.T) {
	cfg := ExecutionConfig{MaxConcurrency: 4}
	cfg.Normalize()

	assert.Equal(t, 4, cfg.MaxConcurrency, "explicit value must survive")
	assert.Equal(t, 1, cfg.MinConcurrency)
	assert.Equal(t, 30*time.Second, cfg.PerTestTimeoutDefault)
	assert.Equal(t, RetryNone, cfg.Retry.Kind)
	assert.Equal(t, DropOldest, cfg.ProgressBackpressure)
	require.NoError(t, cfg.Validate())
}

func TestExecutionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExecutionConfig)
		wantErr string
	}{
		{
			name:    "zero max concurrency",
			mutate:  func(c *ExecutionConfig) { c.MaxConcurrency = 0 },
			wantErr: "max_concurrency",
		},
		{
			name:    "min above max",
			mutate:  func(c *ExecutionConfig) { c.MinConcurrency = 10; c.MaxConcurrency = 2 },
			wantErr: "min_concurrency",
		},
		{
			name:    "negative global timeout",
			mutate:  func(c *ExecutionConfig) { c.GlobalTimeout = -time.Second },
			wantErr: "global_timeout",
		},
		{
			name:    "negative per-test timeout",
			mutate:  func(c *ExecutionConfig) { c.PerTestTimeoutDefault = -time.Second },
			wantErr: "per_test_timeout_default",
		},
		{
			name:    "backoff without base",
			mutate:  func(c *ExecutionConfig) { c.Retry = RetryPolicy{Kind: RetryBackoff, Attempts: 2} },
			wantErr: "retry_policy",
		},
		{
			name:    "fixed without attempts",
			mutate:  func(c *ExecutionConfig) { c.Retry = RetryPolicy{Kind: RetryFixed} },
			wantErr: "retry_policy",
		},
		{
			name:    "unknown backpressure policy",
			mutate:  func(c *ExecutionConfig) { c.ProgressBackpressure = "bogus" },
			wantErr: "progress_backpressure",
		},
		{
			name:    "low watermark above high",
			mutate:  func(c *ExecutionConfig) { c.LowWatermark = 0.95 },
			wantErr: "low_watermark",
		},
		{
			name:    "negative sample interval",
			mutate:  func(c *ExecutionConfig) { c.SampleInterval = -time.Second },
			wantErr: "sample_interval",
		},
		{
			name:    "negative adjust cooldown",
			mutate:  func(c *ExecutionConfig) { c.AdjustCooldown = -time.Second },
			wantErr: "adjust_cooldown",
		},
		{
			name:    "negative grow-after streak",
			mutate:  func(c *ExecutionConfig) { c.GrowAfter = -1 },
			wantErr: "grow_after",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultExecutionConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTestStatus_IsTerminal(t *testing.T) {
	terminal := []TestStatus{TestStatusPassed, TestStatusFailed, TestStatusTimedOut, TestStatusCancelled, TestStatusSkipped}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []TestStatus{TestStatusPending, TestStatusReady, TestStatusRunning}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to be non-terminal", s)
	}
}
