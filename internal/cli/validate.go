package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/config"
)

// Error codes for output that has no ledger code.
const (
	ErrCodeConfigRead    = "E001"
	ErrCodeConfigInvalid = "E002"
	ErrCodeGeneric       = "E003"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Path   string `json:"path"`
	Field  string `json:"field,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		Long: `Validate flowguard.yaml (or the path given by --config) against
the config schema without opening the database.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Config could not be read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.VerboseLog("Validating %s", opts.Config)

	cfg, err := config.Load(opts.Config)
	if err == nil {
		_, err = cfg.Options()
	}

	var cfgErr *config.Error
	switch {
	case err == nil:
		return outputValidateSuccess(formatter, opts.Config)
	case errors.As(err, &cfgErr):
		return outputValidationError(formatter, opts.Config, cfgErr)
	default:
		_ = formatter.Error(ErrCodeConfigRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, path string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Path: path})
	}

	fmt.Fprintf(formatter.Writer, "%s %s is valid\n", appliedColor.Sprint("✓"), path)
	return nil
}

// outputValidationError outputs a schema violation.
func outputValidationError(formatter *OutputFormatter, path string, cfgErr *config.Error) error {
	result := ValidationResult{Valid: false, Path: path, Field: cfgErr.Field}
	if cfgErr.Pos.IsValid() {
		result.Line = cfgErr.Pos.Line()
		result.Column = cfgErr.Pos.Column()
	}

	if formatter.Format == "json" {
		_ = formatter.Error(ErrCodeConfigInvalid, cfgErr.Message, result)
	} else {
		fmt.Fprintf(formatter.Writer, "%s %s is invalid\n", rejectedColor.Sprint("✗"), path)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", cfgErr.Field, cfgErr.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("invalid config: %s", cfgErr.Field))
}
