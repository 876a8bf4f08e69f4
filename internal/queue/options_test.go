package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"nil tables", func(c *Config) { c.Dependencies, c.Rules = nil, nil }, ""},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, "interval"},
		{"negative cap", func(c *Config) { c.IntervalCap = -1 }, "interval cap"},
		{"negative window", func(c *Config) { c.BatchWindow = -1 }, "batch window"},
		{"negative cleanup", func(c *Config) { c.CleanupDelay = -1 }, "cleanup delay"},
		{"unknown rule category", func(c *Config) { c.Rules = op.RuleTable{"bogus": {}} }, "unknown category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_DefaultsNilTables(t *testing.T) {
	s, err := New(Config{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, op.DefaultDependencies(), s.deps)
	assert.Equal(t, op.DefaultRules(), s.rules)
	assert.Nil(t, s.limiter)
}

func TestNew_IntervalCapBuildsLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Second
	cfg.IntervalCap = 4

	s, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, s.limiter)
	assert.Equal(t, 4, s.limiter.Burst())
	assert.InDelta(t, 4.0, float64(s.limiter.Limit()), 0.0001)
}
