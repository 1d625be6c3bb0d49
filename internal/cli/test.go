package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/flowguard/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Golden string // golden snapshot directory
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run scenario files",
		Long: `Run YAML scenarios, each against a fresh in-memory deployment,
checking step expectations, assertions and, with --golden, the rendered
trace against <golden>/<scenario name>.golden.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  flowguard test ./scenarios
  flowguard test ./scenarios --filter "payroll_*"
  flowguard test ./scenarios --golden ./scenarios/golden --update
  flowguard test ./scenarios/stealth_claim.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "directory of golden trace files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	paths, err := harness.FindScenarios(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunSuite(ctx, paths, harness.SuiteOptions{
		GoldenDir: opts.Golden,
		Update:    opts.Update,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "test run interrupted", err)
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// filterScenarios keeps the paths whose base name without extension
// matches filter.
func filterScenarios(paths []string, filter string) ([]string, error) {
	if filter == "" {
		return paths, nil
	}
	var out []string
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, p)
		}
	}
	return out, nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result *harness.SuiteResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result *harness.SuiteResult) error {
	w := cmd.OutOrStdout()

	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	for _, s := range result.Scenarios {
		name := s.Scenario
		if name == "" {
			name = filepath.Base(s.Path)
		}
		if s.Pass {
			fmt.Fprintf(w, "%s %s", appliedColor.Sprint("✓"), name)
			if s.Golden == harness.GoldenUpdated {
				fmt.Fprint(w, " (golden updated)")
			}
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", rejectedColor.Sprint("✗"), name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
