package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// FindScenarios expands path into scenario files. A file is returned as
// is; a directory yields its *.yaml and *.yml files in name order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return paths, nil
}

// SuiteOptions controls golden comparison in RunSuite.
type SuiteOptions struct {
	// GoldenDir holds <scenario name>.golden snapshots. Empty disables
	// golden comparison; a scenario with no file there is checked by its
	// expectations alone.
	GoldenDir string
	// Update rewrites the golden files instead of comparing them.
	Update bool
}

// Golden comparison outcomes reported in ScenarioReport.Golden.
const (
	GoldenMatch    = "match"
	GoldenMismatch = "mismatch"
	GoldenMissing  = "missing"
	GoldenUpdated  = "updated"
)

// SuiteResult summarizes a run over many scenario files.
type SuiteResult struct {
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Scenarios []ScenarioReport `json:"scenarios"`
}

// ScenarioReport is the outcome of one scenario file.
type ScenarioReport struct {
	Scenario string   `json:"scenario,omitempty"`
	Path     string   `json:"path"`
	Pass     bool     `json:"pass"`
	Golden   string   `json:"golden,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Failures returns the reports of failed scenarios.
func (r *SuiteResult) Failures() []ScenarioReport {
	var out []ScenarioReport
	for _, s := range r.Scenarios {
		if !s.Pass {
			out = append(out, s)
		}
	}
	return out
}

// RunSuite loads and runs every scenario in paths. A scenario that cannot
// be loaded or executed counts as failed; RunSuite itself only fails if
// ctx ends.
func RunSuite(ctx context.Context, paths []string, opts SuiteOptions) (*SuiteResult, error) {
	result := &SuiteResult{Scenarios: []ScenarioReport{}}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		report := runOne(ctx, path, opts)
		result.Total++
		if report.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, report)
	}
	return result, nil
}

func runOne(ctx context.Context, path string, opts SuiteOptions) ScenarioReport {
	report := ScenarioReport{Path: path}
	fail := func(errs ...string) ScenarioReport {
		report.Errors = append(report.Errors, errs...)
		return report
	}

	scenario, err := LoadScenario(path)
	if err != nil {
		return fail(fmt.Sprintf("failed to load scenario: %v", err))
	}
	report.Scenario = scenario.Name

	run, err := RunContext(ctx, scenario)
	if err != nil {
		return fail(fmt.Sprintf("scenario execution failed: %v", err))
	}
	report.Errors = run.Errors

	if opts.GoldenDir != "" {
		status, err := checkGolden(opts, scenario.Name, run)
		report.Golden = status
		if err != nil {
			return fail(err.Error())
		}
	}

	report.Pass = len(report.Errors) == 0
	return report
}

// checkGolden compares (or with Update, writes) the snapshot of run.
func checkGolden(opts SuiteOptions, name string, run *Result) (string, error) {
	snapshot, err := run.Snapshot(name)
	if err != nil {
		return "", fmt.Errorf("failed to render trace: %w", err)
	}
	path := filepath.Join(opts.GoldenDir, name+".golden")

	if opts.Update {
		if err := os.MkdirAll(opts.GoldenDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, snapshot, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return GoldenUpdated, nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return GoldenMissing, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, snapshot) {
		return GoldenMismatch, fmt.Errorf("trace does not match %s (run with --update to regenerate)", path)
	}
	return GoldenMatch, nil
}
