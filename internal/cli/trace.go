package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opqueue/internal/harness"
	"github.com/roach88/opqueue/internal/journal"
	"github.com/roach88/opqueue/internal/op"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Type     string // optional event type filter
}

// TraceEvent is one journaled event in the timeline.
type TraceEvent struct {
	Seq      int64     `json:"seq"`
	Type     string    `json:"type"`
	ID       int64     `json:"operation_id,omitempty"`
	Category string    `json:"category,omitempty"`
	Time     time.Time `json:"time"`
	Line     string    `json:"line"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string         `json:"session"`
	Timeline []TraceEvent   `json:"timeline"`
	Counts   map[string]int `json:"counts"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the events of a journal session",
		Long: `Print the events recorded for one journal session, in order.

Sessions are created by "opqueue run --journal". List them with
"opqueue sessions".

Examples:
  opqueue trace --db ./journal.db --session 0192...
  opqueue trace --db ./journal.db --session 0192... --type operation-obsoleted
  opqueue trace --db ./journal.db --session 0192... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to print (required)")
	_ = cmd.MarkFlagRequired("session")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only print events of this type")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := opts.formatter(cmd)

	if opts.Type != "" && !knownEventType(opts.Type) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown event type %q", opts.Type))
	}

	st, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	entries, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, journal.ErrSessionNotFound) {
		_ = f.Error(CodeJournal, fmt.Sprintf("session not found: %s", opts.Session), nil)
		return WrapExitError(ExitCommandError, "session not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	result := TraceResult{
		Session:  opts.Session,
		Timeline: []TraceEvent{},
		Counts:   make(map[string]int),
	}
	for _, entry := range entries {
		e := entry.Event
		if opts.Type != "" && string(e.Type) != opts.Type {
			continue
		}
		result.Counts[string(e.Type)]++
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:      e.Seq,
			Type:     string(e.Type),
			ID:       int64(e.ID),
			Category: string(e.Category),
			Time:     e.Time,
			Line:     harness.FormatEvent(e, opLabel),
		})
	}

	if len(result.Timeline) == 0 {
		return f.Success(result, fmt.Sprintf("No events found for session: %s", opts.Session))
	}
	return f.Success(result, formatTraceText(result))
}

func knownEventType(t string) bool {
	for _, known := range op.EventTypes() {
		if string(known) == t {
			return true
		}
	}
	return false
}

func opLabel(id op.OperationID) string {
	return fmt.Sprintf("op%d", id)
}

func formatTraceText(r TraceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n\n", r.Session)
	for _, e := range r.Timeline {
		fmt.Fprintf(&b, "  [%d] %s  %s\n", e.Seq, e.Time.Format("15:04:05.000"), e.Line)
	}
	fmt.Fprintf(&b, "\n%d event(s)", len(r.Timeline))
	return b.String()
}
