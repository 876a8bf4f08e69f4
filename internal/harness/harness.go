package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
	"github.com/roach88/opqueue/internal/testutil"
)

// DefaultStepTimeout bounds each wait, await_running and await_progress
// step.
const DefaultStepTimeout = 5 * time.Second

// RunOption configures Run.
type RunOption func(*runOptions)

type runOptions struct {
	config    *queue.Config
	observers []op.Observer
	metrics   *queue.Collector
	logger    *slog.Logger
	timeout   time.Duration
}

// WithConfig replaces the scheduler settings, including any config block
// in the scenario.
func WithConfig(cfg queue.Config) RunOption {
	return func(o *runOptions) {
		o.config = &cfg
	}
}

// WithObserver adds an observer alongside the trace collector.
func WithObserver(obs op.Observer) RunOption {
	return func(o *runOptions) {
		o.observers = append(o.observers, obs)
	}
}

// WithMetrics installs a metrics collector on the scheduler.
func WithMetrics(c *queue.Collector) RunOption {
	return func(o *runOptions) {
		o.metrics = c
	}
}

// WithLogger sets the scheduler logger. Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) {
		o.logger = l
	}
}

// WithStepTimeout overrides DefaultStepTimeout.
func WithStepTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.timeout = d
	}
}

// runner executes one scenario against a live scheduler.
type runner struct {
	s       *queue.Scheduler
	ticker  *queue.ManualTicker
	events  *collector
	result  *Result
	ids     map[string]op.OperationID
	futures map[string]*queue.Future
	gates   map[string]*testutil.Gate
	timeout time.Duration
}

// Run executes a scenario and returns its trace and assertion results.
//
// The scheduler uses a manual ticker, so micro-batches flush only on tick
// steps (or on every admission when batching is disabled), and sequential
// batch ids. After the last step the scheduler is stopped; events caused by
// the shutdown are part of the trace.
//
// A returned error means the scenario could not be executed. Failed
// assertions are reported in Result.Errors instead.
func Run(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	o := runOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := queue.DefaultConfig()
	switch {
	case o.config != nil:
		cfg = *o.config
	case scenario.Config != nil:
		var err error
		if cfg, err = scenario.Config.Config(); err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
	}

	ticker := queue.NewManualTicker()
	events := newCollector()
	qopts := []queue.Option{
		queue.WithTicker(ticker),
		queue.WithBatchIDGenerator(queue.NewSequenceGenerator("batch")),
		queue.WithLogger(o.logger),
		queue.WithObserver(events),
	}
	for _, obs := range o.observers {
		qopts = append(qopts, queue.WithObserver(obs))
	}
	if o.metrics != nil {
		qopts = append(qopts, queue.WithMetrics(o.metrics))
	}

	s, err := queue.New(cfg, qopts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()

	r := &runner{
		s:       s,
		ticker:  ticker,
		events:  events,
		result:  NewResult(),
		ids:     make(map[string]op.OperationID),
		futures: make(map[string]*queue.Future),
		gates:   make(map[string]*testutil.Gate),
		timeout: o.timeout,
	}

	stepErr := r.execute(ctx, scenario.Steps)
	r.result.Stats = s.GetStats()

	cancel()
	runErr := <-done
	if stepErr != nil {
		return nil, stepErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return nil, fmt.Errorf("scheduler: %w", runErr)
	}

	result := r.result
	result.Events = events.snapshot()
	for _, e := range result.Events {
		result.Trace = append(result.Trace, FormatEvent(e, result.Label))
	}
	for label, f := range r.futures {
		if outcome, ok := f.Outcome(); ok {
			result.Outcomes[label] = outcome.Kind.String()
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (r *runner) execute(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := r.step(ctx, step); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, step.Kind, err)
		}
	}
	return nil
}

func (r *runner) step(ctx context.Context, step Step) error {
	switch step.Kind {
	case StepQueue:
		return r.queue(step.Queue)
	case StepTick:
		r.ticker.Tick()
	case StepWait:
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.s.WaitForCompletion(ctx)
	case StepEnterBatch:
		r.s.EnterBatchMode()
	case StepExitBatch:
		r.s.ExitBatchMode()
	case StepPause:
		r.s.Pause()
	case StepResume:
		r.s.Resume()
	case StepClear:
		r.s.Clear()
	case StepCancel:
		r.s.CancelOperation(r.ids[step.Target])
	case StepCancelCategory:
		c, err := op.ParseCategory(step.Target)
		if err != nil {
			return err
		}
		r.s.CancelByCategory(c)
	case StepRelease:
		r.gate(step.Target).Open()
	case StepAwaitRunning:
		id := r.ids[step.Target]
		return r.await(ctx, func(e op.Event) bool {
			return e.Type == op.EventStart && e.ID == id
		})
	case StepAwaitProgress:
		id := r.ids[step.Target]
		return r.await(ctx, func(e op.Event) bool {
			return e.Type == op.EventProgress && e.ID == id && e.Progress >= step.Percent
		})
	default:
		return fmt.Errorf("unknown step %q", step.Kind)
	}
	return nil
}

func (r *runner) await(ctx context.Context, match func(op.Event) bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.events.waitFor(ctx, func(events []op.Event) bool {
		for _, e := range events {
			if match(e) {
				return true
			}
		}
		return false
	})
}

func (r *runner) gate(name string) *testutil.Gate {
	g, ok := r.gates[name]
	if !ok {
		g = testutil.NewGate()
		r.gates[name] = g
	}
	return g
}

func (r *runner) queue(q *QueueStep) error {
	c, err := op.ParseCategory(q.Category)
	if err != nil {
		return err
	}
	meta, err := q.metadata()
	if err != nil {
		return err
	}

	var gate *testutil.Gate
	if q.Gate != "" {
		gate = r.gate(q.Gate)
	}
	execute := scripted(q, gate)

	var id op.OperationID
	if q.Async {
		f := r.s.QueueOperationAsync(c, execute, meta)
		id = f.ID()
		r.futures[r.labelFor(q, id)] = f
	} else {
		id = r.s.QueueOperation(c, execute, meta)
	}

	label := r.labelFor(q, id)
	r.ids[label] = id
	r.result.labels[id] = label
	return nil
}

func (r *runner) labelFor(q *QueueStep, id op.OperationID) string {
	if q.Label != "" {
		return q.Label
	}
	return defaultLabel(id)
}

func (q *QueueStep) metadata() (op.Metadata, error) {
	meta := op.Metadata{
		Description:     q.Description,
		SkipRunning:     q.SkipRunning,
		RespectProgress: q.RespectProgress,
		Cascading:       q.Cascading,
		SkipTriggers:    q.SkipTriggers,
		Selectors:       q.Selectors,
	}
	if q.Obsoletes != nil {
		cats, err := op.ParseCategories(q.Obsoletes)
		if err != nil {
			return op.Metadata{}, err
		}
		meta.Obsoletes = cats
	}
	if len(q.ObsoleteSelectors) > 0 {
		meta.Predicate = op.SelectorPredicate(q.ObsoleteSelectors...)
	}
	return meta, nil
}

// scripted builds the execute function of a queue step: report progress,
// wait for the gate, then succeed or fail.
func scripted(q *QueueStep, gate *testutil.Gate) queue.ExecuteFunc {
	return func(ctx context.Context, ec *queue.ExecContext) (any, error) {
		for _, p := range q.Progress {
			if p.Phase != "" {
				ec.Progress.SetPhase(p.Phase)
			}
			if p.Message != "" {
				ec.Progress.SetMessage(p.Message)
			}
			ec.Progress.SetProgress(p.Percent)
		}
		if gate != nil {
			if err := gate.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if q.Fail != "" {
			return nil, errors.New(q.Fail)
		}
		return q.Label, nil
	}
}
