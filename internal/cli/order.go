package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/opqueue/internal/config"
	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
)

// OrderOptions holds flags for the order command.
type OrderOptions struct {
	*RootOptions
	Config     string
	Dependents bool
}

// OrderResult lists categories in flush order.
type OrderResult struct {
	Input []string `json:"input"`
	Order []string `json:"order"`

	// Dependents is set with --dependents: every category that depends,
	// directly or transitively, on one of the inputs.
	Dependents []string `json:"dependents,omitempty"`
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order [categories...]",
		Short: "Print the flush order of categories",
		Long: `Sort categories the way a micro-batch flush orders them: every category
after the categories it depends on, ties broken by declaration order.

With no arguments all categories are sorted.

Examples:
  opqueue order render-update data-add style-init
  opqueue order data-add --dependents
  opqueue order --config queue.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration file with a dependencies table")
	cmd.Flags().BoolVar(&opts.Dependents, "dependents", false, "also list categories depending on the inputs")

	return cmd
}

func runOrder(opts *OrderOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cats := op.AllCategories()
	if len(args) > 0 {
		var err error
		if cats, err = op.ParseCategories(args); err != nil {
			_ = f.Error(CodeUsage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid category", err)
		}
	}

	cfg := queue.DefaultConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return WrapExitError(ExitFailure, "invalid configuration", err)
		}
	}

	order, err := cfg.Dependencies.Order(cats)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot order categories", err)
	}

	result := OrderResult{
		Input: categoryNames(cats),
		Order: categoryNames(order),
	}
	text := strings.Join(result.Order, " -> ")
	if opts.Dependents {
		result.Dependents = categoryNames(cfg.Dependencies.Dependents(cats...))
		text += fmt.Sprintf("\ndependents: %s", strings.Join(result.Dependents, " "))
	}
	return f.Success(result, text)
}
