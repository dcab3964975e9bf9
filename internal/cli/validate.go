package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempo/internal/compiler"
	"github.com/roach88/tempo/internal/harness"
	"github.com/roach88/tempo/internal/ir"
)

// ValidationResult holds the validation result of one scenario.
type ValidationResult struct {
	Scenario string                     `json:"scenario"`
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario|dir>...",
		Short: "Validate scenarios without running them",
		Long: `Load and validate scenario files without running them.

Directories are searched recursively for .yaml, .yml, .json and .cue files.
Every error of every scenario is reported.

Exit codes:
  0 - All scenarios valid
  1 - One or more scenarios invalid
  2 - A scenario could not be loaded`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	scenarios, loadErrs := loadScenarioPaths(opts, paths)
	if len(loadErrs) > 0 {
		for _, err := range loadErrs[1:] {
			formatter.VerboseLog("%v", err)
		}
		return outputLoadError(formatter, loadErrs[0])
	}

	results := make([]ValidationResult, 0, len(scenarios))
	for _, sc := range scenarios {
		formatter.VerboseLog("Validating scenario: %s", sc.Name)
		errs := compiler.Validate(sc)
		results = append(results, ValidationResult{Scenario: sc.Name, Valid: len(errs) == 0, Errors: errs})
	}

	for _, r := range results {
		if !r.Valid {
			return outputValidationErrors(formatter, results)
		}
	}
	return outputValidateSuccess(formatter, results)
}

// loadScenarioPaths loads scenario files and the scenario files of
// directories.
func loadScenarioPaths(opts *RootOptions, paths []string) ([]*ir.Scenario, []error) {
	fsys := opts.fs()
	var scenarios []*ir.Scenario
	var errs []error
	for _, path := range paths {
		info, err := fsys.Stat(path)
		if err == nil && info.IsDir() {
			scs, dirErrs := harness.LoadScenarios(fsys, path)
			scenarios = append(scenarios, scs...)
			errs = append(errs, dirErrs...)
			continue
		}
		sc, err := harness.LoadScenario(fsys, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, errs
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, results []ValidationResult) error {
	if formatter.IsJSON() {
		return formatter.Success(results)
	}

	for _, r := range results {
		fmt.Fprintf(formatter.Writer, "✓ %s\n", r.Scenario)
	}
	fmt.Fprintf(formatter.Writer, "All %d scenario(s) valid\n", len(results))
	return nil
}

// outputValidationErrors outputs validation results with at least one
// invalid scenario.
func outputValidationErrors(formatter *OutputFormatter, results []ValidationResult) error {
	var first *compiler.ValidationError
	count := 0
	for i := range results {
		for j := range results[i].Errors {
			if first == nil {
				first = &results[i].Errors[j]
			}
			count++
		}
	}
	if first == nil {
		return errors.New("outputValidationErrors called without errors")
	}

	if formatter.IsJSON() {
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   results,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}); err != nil {
			return err
		}
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
	}

	// Text format
	for _, r := range results {
		if len(r.Errors) == 0 {
			fmt.Fprintf(formatter.Writer, "✓ %s\n", r.Scenario)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✗ %s\n", r.Scenario)
		for _, err := range r.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
}
