package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempo/internal/compiler"
	"github.com/roach88/tempo/internal/harness"
	"github.com/roach88/tempo/internal/timeval"
	"github.com/roach88/tempo/internal/trace"
)

// CLI error codes, next to the load (E0xx) and validation (E1xx) codes.
const (
	ErrCodeStore          = "E200" // Database could not be opened or written
	ErrCodeRunNotFound    = "E201" // No run with this ID
	ErrCodeDigestMismatch = "E202" // Stored entries do not match the digest
	ErrCodeScenarioFailed = "E203" // Expectations did not hold
	ErrCodeNotReplayable  = "E204" // Run recorded another scenario
	ErrCodeInvalidFlag    = "E205" // Flag value could not be parsed
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Until    string
	Step     string
	Database string
	Trace    bool

	// IDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator trace.IDGenerator
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Scenario     string        `json:"scenario"`
	ScenarioHash string        `json:"scenario_hash"`
	Pass         bool          `json:"pass"`
	Errors       []string      `json:"errors,omitempty"`
	Digest       string        `json:"digest"`
	FinalTime    string        `json:"final_time"`
	Marks        []string      `json:"marks"`
	EntryCount   int           `json:"entry_count"`
	Entries      []trace.Entry `json:"entries,omitempty"`
	RunID        string        `json:"run_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario on a manual clock",
		Long: `Run a scenario file (YAML, JSON or CUE) on a manual clock and check its
expectations.

The clock is stepped through the steps of the scenario, or through frames
of --step up to --until when given. With --db the recorded trace is saved
under a new run ID.

Exit codes:
  0 - All expectations hold
  1 - Invalid scenario or failed expectations
  2 - Command error (unreadable scenario, database error, etc.)

Examples:
  tempo run scenarios/race.yaml
  tempo run scenarios/rates.cue --until 1s --step 16ms --trace
  tempo run scenarios/race.yaml --db ./tempo.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Until, "until", "", "last clock time, overrides the scenario steps (e.g. 2s)")
	cmd.Flags().StringVar(&opts.Step, "step", "", "frame duration used with --until (default: a single frame)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to save the trace in")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print the recorded trace")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	hopts, err := opts.harnessOptions(cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid flag", err)
	}

	sc, err := harness.LoadScenario(opts.fs(), path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded scenario %s from %s", sc.Name, path)

	res, err := harness.Run(sc, hopts...)
	if err != nil {
		return outputRunError(formatter, err)
	}

	result := RunResult{
		Scenario:     res.Scenario,
		ScenarioHash: res.ScenarioHash,
		Pass:         res.Pass,
		Digest:       res.Digest,
		FinalTime:    timeval.Format(res.FinalTime),
		Marks:        res.Marks,
		EntryCount:   len(res.Entries),
	}
	for _, e := range res.Errors {
		result.Errors = append(result.Errors, e.Error())
	}
	if opts.Trace {
		result.Entries = res.Entries
	}

	if opts.Database != "" {
		id, err := opts.saveRun(cmd, res)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to save run", err)
		}
		result.RunID = id
		formatter.VerboseLog("Saved run %s to %s", id, opts.Database)
	}

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", result.Scenario, len(result.Errors)))
	}
	return nil
}

// harnessOptions converts the flags into harness options.
func (opts *RunOptions) harnessOptions(cmd *cobra.Command) ([]harness.Option, error) {
	hopts := []harness.Option{harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr()))}
	if opts.Until == "" {
		if opts.Step != "" {
			return nil, errors.New("--step requires --until")
		}
		return hopts, nil
	}
	until, err := timeval.Parse(opts.Until)
	if err != nil {
		return nil, fmt.Errorf("--until: %w", err)
	}
	var step float64
	if opts.Step != "" {
		if step, err = timeval.Parse(opts.Step); err != nil {
			return nil, fmt.Errorf("--step: %w", err)
		}
	}
	return append(hopts, harness.WithUntil(until, step)), nil
}

// saveRun stores the trace of res under a new run ID.
func (opts *RunOptions) saveRun(cmd *cobra.Command, res *harness.Result) (string, error) {
	st, err := opts.openStore(opts.Database, cmd)
	if err != nil {
		return "", err
	}
	defer st.Close()

	gen := opts.IDGenerator
	if gen == nil {
		gen = trace.UUIDv7Generator{}
	}
	id := gen.Generate()
	if err := st.SaveRun(cmdContext(cmd), res.TraceRun(id)); err != nil {
		return "", err
	}
	return id, nil
}

// outputRunResult prints the outcome of a run.
func outputRunResult(formatter *OutputFormatter, result RunResult) error {
	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeScenarioFailed,
				Message: fmt.Sprintf("%d expectation(s) failed", len(result.Errors)),
			}
		}
		return formatter.JSON(resp)
	}

	w := formatter.Writer
	if len(result.Entries) > 0 {
		if err := trace.Write(w, result.Entries); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if result.Pass {
		fmt.Fprintf(w, "✓ %s (%d entries, final time %s)\n", result.Scenario, result.EntryCount, result.FinalTime)
	} else {
		fmt.Fprintf(w, "✗ %s (%d entries, final time %s)\n", result.Scenario, result.EntryCount, result.FinalTime)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	fmt.Fprintf(w, "  digest: %s\n", result.Digest)
	if result.RunID != "" {
		fmt.Fprintf(w, "  run: %s\n", result.RunID)
	}
	return nil
}

// outputLoadError reports a scenario that could not be loaded.
func outputLoadError(formatter *OutputFormatter, err error) error {
	code := harness.ErrCodeGeneric
	var le *harness.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load scenario", err)
}

// outputRunError reports a scenario that could not be run: validation
// errors are a scenario failure, anything else a command error.
func outputRunError(formatter *OutputFormatter, err error) error {
	var se *compiler.ScenarioError
	if errors.As(err, &se) {
		return outputValidationErrors(formatter, []ValidationResult{{Scenario: se.Scenario, Errors: se.Errors}})
	}
	_ = formatter.Error(harness.ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to run scenario", err)
}

// cmdContext returns the command context, or a background context when
// the command was executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
