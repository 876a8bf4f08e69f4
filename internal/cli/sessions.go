package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/opqueue/internal/journal"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database string
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List journal sessions",
		Long: `List every session recorded in a journal database, oldest first.

Examples:
  opqueue sessions --db ./journal.db
  opqueue sessions --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSessions(opts *SessionsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	f := opts.formatter(cmd)
	if len(sessions) == 0 {
		return f.Success(sessions, "No sessions recorded.")
	}

	var b strings.Builder
	for _, s := range sessions {
		fmt.Fprintf(&b, "%s  %s  %4d events  %s\n", s.ID, s.StartedAt.Format(time.RFC3339), s.Events, s.Label)
	}
	return f.Success(sessions, strings.TrimSuffix(b.String(), "\n"))
}
