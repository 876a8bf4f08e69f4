package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/opqueue/internal/config"
	"github.com/roach88/opqueue/internal/op"
)

// ValidationResult is the effective configuration of a valid file.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Path   string      `json:"path"`
	Config config.File `json:"config"`

	// Order is every category in flush order under the file's dependency
	// table.
	Order []string `json:"order"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a scheduler configuration file",
		Long: `Validate a YAML (.yaml, .yml) or CUE (.cue) scheduler configuration.

CUE files are checked against the embedded schema. Both formats are then
checked for unknown categories, out-of-range settings and dependency
cycles. On success the effective configuration, defaults included, is
printed.

Examples:
  opqueue validate queue.yaml
  opqueue validate queue.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(path)
	if err != nil {
		var loadErr *config.LoadError
		if !errors.As(err, &loadErr) {
			return WrapExitError(ExitCommandError, "failed to load configuration", err)
		}
		if err := f.Error(loadErr.Code, loadErr.Error(), nil); err != nil {
			return err
		}
		code := ExitFailure
		if loadErr.Code == config.ErrCodeNotFound {
			code = ExitCommandError
		}
		return WrapExitError(code, "invalid configuration", loadErr)
	}

	order, err := cfg.Dependencies.Order(op.AllCategories())
	if err != nil {
		// Validate already rejected cycles.
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}

	result := ValidationResult{
		Valid:  true,
		Path:   path,
		Config: config.Summarize(cfg),
		Order:  categoryNames(order),
	}
	f.VerboseLog("%s: %d dependency entries, %d rules", path, len(cfg.Dependencies), len(cfg.Rules))

	text, err := yaml.Marshal(result.Config)
	if err != nil {
		return err
	}
	return f.Success(result, fmt.Sprintf("✓ %s is valid\n\n%s\norder: %s",
		path, text, strings.Join(result.Order, " -> ")))
}

func categoryNames(cats []op.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.String()
	}
	return out
}
