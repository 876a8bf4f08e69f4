package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/roach88/opqueue/internal/op"
)

var (
	// ErrInvalidOperation is wrapped by the failure of an admission with an
	// unknown category or a nil execute function.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrClosed is returned by Run after the scheduler has stopped.
	ErrClosed = errors.New("scheduler closed")
)

// Scheduler is a dependency-aware operation queue.
//
// Thread-safety: every exported method is safe for concurrent use. Run
// must be called from exactly one goroutine.
type Scheduler struct {
	cfg      Config
	deps     op.DependencyTable
	rules    op.RuleTable
	clock    clock.Clock
	ticker   Ticker
	logger   *slog.Logger
	batchIDs BatchIDGenerator
	metrics  *Collector
	initial  []op.Observer

	ids     idClock
	events  *emitter
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	wake    chan struct{}
	wg      sync.WaitGroup

	mu             sync.Mutex
	ops            map[op.OperationID]*operation
	counts         map[op.State]int
	batch          []op.OperationID // current micro-batch, admission order
	held           []op.OperationID // batch-mode admissions
	jobs           []op.OperationID // executor FIFO
	batchMode      bool
	flushScheduled bool
	paused         bool
	active         bool
	started        bool
	closed         bool
	stop           context.CancelFunc
	changed        chan struct{}
}

// New creates a Scheduler. Nil tables in cfg are replaced by the defaults;
// the tables are copied so later edits by the caller have no effect.
//
// Returns an error if cfg is invalid, including a cyclic dependency table.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if cfg.Dependencies == nil {
		cfg.Dependencies = op.DefaultDependencies()
	}
	if cfg.Rules == nil {
		cfg.Rules = op.DefaultRules()
	}

	s := &Scheduler{
		cfg:      cfg,
		deps:     cfg.Dependencies.Clone(),
		rules:    cfg.Rules.Clone(),
		clock:    clock.WallClock,
		logger:   slog.Default(),
		batchIDs: UUIDv7Generator{},
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		wake:     make(chan struct{}, 1),
		ops:      make(map[op.OperationID]*operation),
		counts:   make(map[op.State]int),
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ticker == nil {
		s.ticker = NewClockTicker(s.clock, cfg.BatchWindow)
	}
	if cfg.Interval > 0 && cfg.IntervalCap > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.Interval/time.Duration(cfg.IntervalCap)), cfg.IntervalCap)
	}
	s.events = newEmitter(s.logger)
	for _, obs := range s.initial {
		s.events.Subscribe(obs)
	}
	s.initial = nil

	return s, nil
}

// Run dispatches operations and delivers events until ctx is cancelled or
// Stop is called. On return every live operation has been cancelled, every
// running execute function has returned and every event has been
// delivered.
//
// Returns ctx.Err() on cancellation and nil after Stop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.mu.Unlock()
	defer cancel()

	s.logger.Info("scheduler starting",
		"concurrency", s.cfg.Concurrency,
		"batching", !s.cfg.DisableBatching,
	)

	delivered := make(chan struct{})
	go func() {
		s.events.run()
		close(delivered)
	}()

	if err := s.dispatch(runCtx); err != nil {
		s.logger.Debug("dispatcher stopped", "reason", err)
	}

	s.shutdown()
	s.events.Close()
	<-delivered

	if err := ctx.Err(); err != nil {
		s.logger.Info("scheduler stopping: context cancelled")
		return err
	}
	s.logger.Info("scheduler stopping: stopped")
	return nil
}

// Stop makes Run return. It is a no-op if Run was never called.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// shutdown cancels every live operation and waits for running ones.
func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	for _, o := range s.liveLocked(true) {
		s.cancelLocked(o, op.ReasonShutdown)
	}
	s.batch, s.held, s.jobs = nil, nil, nil
	s.batchMode = false
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkIdleLocked()
	for _, o := range s.ops {
		if o.cleanup != nil {
			o.cleanup.Stop()
		}
	}
}

// QueueOperation admits an operation and returns its id.
//
// It never fails: an unknown category or nil execute function is admitted
// and immediately settled as Failed with an operation-error event.
func (s *Scheduler) QueueOperation(c op.Category, execute ExecuteFunc, meta op.Metadata) op.OperationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admitLocked(c, execute, meta, false).id
}

// QueueOperationAsync admits an operation and returns a Future of its
// outcome.
//
// In batch mode the Future resolves at once with op.OutcomeDeferred and
// does not report the eventual result; use WaitForCompletion and the
// event stream instead.
func (s *Scheduler) QueueOperationAsync(c op.Category, execute ExecuteFunc, meta op.Metadata) *Future {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admitLocked(c, execute, meta, true).future
}

func (s *Scheduler) admitLocked(c op.Category, execute ExecuteFunc, meta op.Metadata, withFuture bool) *operation {
	id := s.ids.Next()
	now := s.clock.Now()

	meta = meta.Clone()
	meta.Timestamp = now
	ctx, cancel := context.WithCancelCause(context.Background())

	o := &operation{
		id:       id,
		category: c,
		execute:  execute,
		meta:     meta,
		ctx:      ctx,
		cancel:   cancel,
		state:    op.StatePending,
		progress: op.ProgressRecord{StartTime: now, LastUpdate: now},
	}
	if withFuture {
		o.future = newFuture(id)
	}
	s.ops[id] = o
	s.counts[op.StatePending]++
	s.metrics.admitted(c)
	s.metrics.transition("", op.StatePending)

	switch {
	case !c.Valid() || execute == nil:
		s.rejectLocked(o)
		return o
	case s.closed:
		s.cancelLocked(o, op.ReasonShutdown)
		return o
	case s.batchMode:
		s.setStateLocked(o, op.StateBatchHeld)
		s.held = append(s.held, id)
		if o.future != nil {
			o.future.resolve(op.Outcome{Kind: op.OutcomeDeferred, ID: id})
		}
		s.logger.Debug("operation held for batch", "id", id, "category", c)
		return o
	}

	s.logger.Debug("operation admitted",
		"id", id,
		"category", c,
		"description", meta.Description,
	)
	s.obsoleteLocked(o)
	s.enqueueBatchLocked(o)
	return o
}

// rejectLocked fails an admission that can never run.
func (s *Scheduler) rejectLocked(o *operation) {
	var err error
	if !o.category.Valid() {
		err = fmt.Errorf("%w: unknown category %q", ErrInvalidOperation, o.category)
	} else {
		err = fmt.Errorf("%w: nil execute function", ErrInvalidOperation)
	}
	execErr := &op.ExecutionError{
		OperationID: o.id,
		Category:    o.category,
		Description: o.meta.Description,
		Err:         err,
	}
	s.logger.Warn("operation rejected", "id", o.id, "error", err)

	e := o.event(op.EventError)
	e.Err = execErr
	s.emitLocked(e)
	s.setStateLocked(o, op.StateFailed)
	s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeFailed, ID: o.id, Err: execErr})
}

// setStateLocked moves o to a new lifecycle state, keeping the live
// counters current. A disallowed transition is logged and ignored.
func (s *Scheduler) setStateLocked(o *operation, to op.State) bool {
	if !op.CanTransition(o.state, to) {
		s.logger.Error("disallowed state transition",
			"error", &op.TransitionError{ID: o.id, From: o.state, To: to},
		)
		return false
	}
	if o.state.IsLive() {
		s.counts[o.state]--
	}
	if to.IsLive() {
		s.counts[to]++
	}
	s.metrics.transition(o.state, to)
	o.state = to
	return true
}

// finalizeLocked resolves the future of a terminal operation and schedules
// its cleanup.
func (s *Scheduler) finalizeLocked(o *operation, outcome op.Outcome) {
	if o.future != nil {
		o.future.resolve(outcome)
	}
	s.metrics.finished(o.category, outcome.Kind)

	if s.cfg.CleanupDelay == 0 {
		s.cleanupLocked(o)
	} else if !s.closed {
		o.cleanup = s.clock.AfterFunc(s.cfg.CleanupDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.cleanupLocked(o)
		})
	}

	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Scheduler) cleanupLocked(o *operation) {
	delete(s.ops, o.id)
	o.cancel(nil)
}

func (s *Scheduler) emitLocked(e op.Event) {
	e.Time = s.clock.Now()
	s.events.Enqueue(e)
}

// WaitForCompletion flushes the micro-batch and blocks until no operation
// is pending, queued or running and every event emitted so far has been
// delivered. Batch-held operations are not waited for.
//
// Must not be called from an execute function or an observer.
func (s *Scheduler) WaitForCompletion(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.counts[op.StatePending] > 0 {
			s.flushLocked()
		}
		busy := s.counts[op.StateQueued] > 0 || s.counts[op.StateRunning] > 0
		changed := s.changed
		s.mu.Unlock()

		if !busy {
			return s.events.WaitDelivered(ctx, s.events.Seq())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Pause stops new operations from starting. Running ones continue.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume lets queued operations start again.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.notify()
}

// Clear cancels every live operation, batch-held ones included, and
// resets the micro-batch, the held set and the executor queue. Running
// operations settle once their execute functions return.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveLocked(true)
	for _, o := range live {
		s.cancelLocked(o, op.ReasonCleared)
	}
	s.batch, s.held, s.jobs = nil, nil, nil
	s.batchMode = false
	s.checkIdleLocked()
	s.logger.Info("queue cleared", "cancelled", len(live))
}

// CancelOperation cancels a live operation and emits operation-cancelled.
// It returns false if id is unknown, terminal or already cancelled.
//
// Manual cancellation does not consult the respect-progress guard.
func (s *Scheduler) CancelOperation(id op.OperationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.ops[id]
	if !ok {
		return false
	}
	return s.cancelLocked(o, op.ReasonManual)
}

// CancelByCategory cancels every live operation of category c and returns
// how many were cancelled.
func (s *Scheduler) CancelByCategory(c op.Category) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.liveLocked(true) {
		if o.category == c && s.cancelLocked(o, op.ReasonCategory) {
			n++
		}
	}
	return n
}

// GetActiveOperations returns the ids of pending, queued and running
// operations in ascending order.
func (s *Scheduler) GetActiveOperations() []op.OperationID {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.liveLocked(false)
	ids := make([]op.OperationID, len(live))
	for i, o := range live {
		ids[i] = o.id
	}
	return ids
}

// GetStats returns a snapshot of queue occupancy.
func (s *Scheduler) GetStats() op.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return op.Stats{
		Pending:  s.counts[op.StatePending],
		Size:     len(s.jobs),
		Running:  s.counts[op.StateRunning],
		IsPaused: s.paused,
	}
}

// Subscribe registers obs for every event emitted from now on and returns
// a function that unsubscribes it.
func (s *Scheduler) Subscribe(obs op.Observer) func() {
	return s.events.Subscribe(obs)
}
