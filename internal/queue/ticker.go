package queue

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// Ticker schedules micro-batch flushes.
//
// Schedule is called with the scheduler lock held and must not call flush
// synchronously.
type Ticker interface {
	Schedule(flush func())
}

// ClockTicker runs each flush once the batch window has elapsed.
type ClockTicker struct {
	clock  clock.Clock
	window time.Duration
}

// NewClockTicker creates a ticker on clk.
func NewClockTicker(clk clock.Clock, window time.Duration) *ClockTicker {
	return &ClockTicker{clock: clk, window: window}
}

// Schedule arms a timer for flush.
func (t *ClockTicker) Schedule(flush func()) {
	t.clock.AfterFunc(t.window, flush)
}

// ManualTicker holds flushes until Tick is called. Used by tests and the
// scenario harness to control batch boundaries exactly.
type ManualTicker struct {
	mu      sync.Mutex
	pending []func()
}

// NewManualTicker creates an idle ManualTicker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{}
}

// Schedule records flush for the next Tick.
func (t *ManualTicker) Schedule(flush func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, flush)
}

// Tick runs every recorded flush and returns how many ran.
func (t *ManualTicker) Tick() int {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, flush := range pending {
		flush()
	}
	return len(pending)
}

// Pending returns the number of flushes waiting for Tick.
func (t *ManualTicker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
