package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/opqueue/internal/config"
	"github.com/roach88/opqueue/internal/harness"
	"github.com/roach88/opqueue/internal/hub"
	"github.com/roach88/opqueue/internal/journal"
	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config  string // configuration file overriding the scenario's own
	Journal string // SQLite journal database
	Metrics string // prometheus text output; "-" for stderr
}

// RunResult is the output of one scenario run.
type RunResult struct {
	Scenario string            `json:"scenario"`
	Pass     bool              `json:"pass"`
	Trace    []string          `json:"trace"`
	Errors   []string          `json:"errors,omitempty"`
	Stats    StatsResult       `json:"stats"`
	Outcomes map[string]string `json:"outcomes,omitempty"`
	Session  string            `json:"session,omitempty"`
}

// StatsResult is op.Stats as written in results.
type StatsResult struct {
	Pending int  `json:"pending"`
	Size    int  `json:"size"`
	Running int  `json:"running"`
	Paused  bool `json:"paused"`
}

func statsResult(s op.Stats) StatsResult {
	return StatsResult{Pending: s.Pending, Size: s.Size, Running: s.Running, Paused: s.IsPaused}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against a live scheduler",
		Long: `Run a scenario file and print its event trace.

The scenario's steps drive a scheduler with a manual flush ticker. Every
event is printed as one trace line; assertions are checked afterwards.

Exit codes:
  0 - Scenario passed
  1 - Assertions failed or the configuration is invalid
  2 - Command error (missing file, journal error, step timeout)

Examples:
  opqueue run scenarios/ordered_batch.yaml
  opqueue run scenarios/ordered_batch.yaml --config queue.cue
  opqueue run scenarios/ordered_batch.yaml --journal ./journal.db
  opqueue run scenarios/ordered_batch.yaml --metrics -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration file (.yaml or .cue) replacing the scenario's config")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record events into this SQLite database")
	cmd.Flags().StringVar(&opts.Metrics, "metrics", "", "write prometheus metrics to this file after the run (- for stderr)")

	return cmd
}

func runScenarioFile(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.RunOption{harness.WithLogger(logger)}

	if opts.Config != "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitFailure, "invalid configuration", err)
		}
		runOpts = append(runOpts, harness.WithConfig(cfg))
	}

	h := hub.New(logger)
	runOpts = append(runOpts, harness.WithObserver(hub.NewBridge(h)))
	unsubscribe := hub.SubscribeAll(h, func(e op.Event) {
		logger.Debug("event", "type", e.Type, "seq", e.Seq, "id", e.ID, "category", e.Category)
	})
	defer unsubscribe()

	var (
		store   *journal.Store
		session journal.Session
	)
	if opts.Journal != "" {
		store, err = journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer store.Close()

		session, err = store.StartSession(ctx, scenario.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal session", err)
		}
		runOpts = append(runOpts, harness.WithObserver(journal.NewRecorder(store, session.ID, logger)))
		f.VerboseLog("journal session %s", session.ID)
	}

	var registry *prometheus.Registry
	if opts.Metrics != "" {
		collector := queue.NewMetricsCollector()
		registry = prometheus.NewRegistry()
		registry.MustRegister(collector)
		runOpts = append(runOpts, harness.WithMetrics(collector))
	}

	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	if registry != nil {
		if err := writeMetrics(registry, opts.Metrics, cmd.ErrOrStderr()); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	out := RunResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    result.Trace,
		Errors:   result.Errors,
		Stats:    statsResult(result.Stats),
		Outcomes: result.Outcomes,
		Session:  session.ID,
	}

	if !result.Pass {
		msg := fmt.Sprintf("%d assertion(s) failed", len(result.Errors))
		if err := f.Failure(CodeFailed, msg, out, formatRunText(out)); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	return f.Success(out, formatRunText(out))
}

func formatRunText(r RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", r.Scenario)
	if r.Session != "" {
		fmt.Fprintf(&b, "Session: %s\n", r.Session)
	}
	fmt.Fprintln(&b)
	for i, line := range r.Trace {
		fmt.Fprintf(&b, "  %3d  %s\n", i+1, line)
	}
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Stats: pending=%d size=%d running=%d paused=%t\n",
		r.Stats.Pending, r.Stats.Size, r.Stats.Running, r.Stats.Paused)
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n%s", e)
	}
	if r.Pass {
		fmt.Fprintf(&b, "✓ %s passed", r.Scenario)
	} else {
		fmt.Fprintf(&b, "✗ %s failed", r.Scenario)
	}
	return b.String()
}

// writeMetrics writes every gathered family in the prometheus text format.
func writeMetrics(g prometheus.Gatherer, dest string, stderr io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	w := stderr
	if dest != "-" {
		file, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
