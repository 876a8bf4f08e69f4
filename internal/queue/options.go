package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"

	"github.com/roach88/opqueue/internal/op"
)

const (
	// DefaultConcurrency serializes execution so each category observes the
	// fully applied effects of the categories it depends on.
	DefaultConcurrency = 1

	// DefaultBatchWindow is how long admissions accumulate before a flush.
	DefaultBatchWindow = time.Millisecond

	// DefaultCleanupDelay is how long a terminal operation stays readable.
	DefaultCleanupDelay = time.Second
)

// Config holds the scheduler settings.
type Config struct {
	// Concurrency caps the number of execute functions in flight.
	Concurrency int

	// Interval and IntervalCap limit starts to IntervalCap per Interval.
	// Either being zero disables the limit.
	Interval    time.Duration
	IntervalCap int

	// BatchWindow is the micro-batch window used by the default ticker.
	BatchWindow time.Duration

	// CleanupDelay is the grace period before a terminal operation's
	// progress record and token are dropped.
	CleanupDelay time.Duration

	// DisableBatching flushes on every admission.
	DisableBatching bool

	// Dependencies and Rules default to op.DefaultDependencies and
	// op.DefaultRules when nil. An empty non-nil table is honoured.
	Dependencies op.DependencyTable
	Rules        op.RuleTable
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:  DefaultConcurrency,
		BatchWindow:  DefaultBatchWindow,
		CleanupDelay: DefaultCleanupDelay,
		Dependencies: op.DefaultDependencies(),
		Rules:        op.DefaultRules(),
	}
}

// Validate checks bounds and both tables.
func (c Config) Validate() error {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Interval < 0 {
		errs = append(errs, fmt.Errorf("interval must not be negative, got %s", c.Interval))
	}
	if c.IntervalCap < 0 {
		errs = append(errs, fmt.Errorf("interval cap must not be negative, got %d", c.IntervalCap))
	}
	if c.BatchWindow < 0 {
		errs = append(errs, fmt.Errorf("batch window must not be negative, got %s", c.BatchWindow))
	}
	if c.CleanupDelay < 0 {
		errs = append(errs, fmt.Errorf("cleanup delay must not be negative, got %s", c.CleanupDelay))
	}
	if c.Dependencies != nil {
		if err := c.Dependencies.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Rules != nil {
		if err := c.Rules.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for timestamps, durations, cleanup and
// the default ticker. Default: clock.WallClock.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

// WithTicker replaces the micro-batch ticker.
func WithTicker(t Ticker) Option {
	return func(s *Scheduler) {
		s.ticker = t
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithBatchIDGenerator sets the batch id source. Default: UUIDv7Generator.
func WithBatchIDGenerator(g BatchIDGenerator) Option {
	return func(s *Scheduler) {
		s.batchIDs = g
	}
}

// WithObserver subscribes obs before any event is emitted.
func WithObserver(obs op.Observer) Option {
	return func(s *Scheduler) {
		s.initial = append(s.initial, obs)
	}
}

// WithMetrics reports scheduler activity to c.
func WithMetrics(c *Collector) Option {
	return func(s *Scheduler) {
		s.metrics = c
	}
}
