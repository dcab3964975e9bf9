package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempo/internal/harness"
	"github.com/roach88/tempo/internal/store"
	"github.com/roach88/tempo/internal/trace"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single stored run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Digest        string `json:"digest"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Scenario         string            `json:"scenario"`
	ScenarioHash     string            `json:"scenario_hash"`
	Digest           string            `json:"digest"`
	Runs             []ReplayRunResult `json:"runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Re-run a scenario and verify determinism",
		Long: `Re-run a scenario and compare its trace digest with the stored runs of
the same scenario.

Runs are matched by scenario hash, so a YAML scenario replays a run saved
from the equivalent CUE document. Runs saved with --until or --step
replay only with the same flags.

Exit codes:
  0 - Every compared run recorded the same trace
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, etc.)

Examples:
  tempo replay --db ./tempo.db scenarios/race.yaml
  tempo replay --db ./tempo.db scenarios/race.yaml --run 0190f3b2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay against a specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmdContext(cmd)

	sc, err := harness.LoadScenario(opts.fs(), path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	res, err := harness.Run(sc, harness.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		return outputRunError(formatter, err)
	}

	st, err := opts.openStore(opts.Database, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var runs []trace.Run
	if opts.RunID != "" {
		run, err := st.VerifyRun(ctx, opts.RunID)
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("no run with ID %s", opts.RunID), nil)
			return WrapExitError(ExitCommandError, "run not found", err)
		case err != nil:
			_ = formatter.Error(ErrCodeDigestMismatch, err.Error(), nil)
			return WrapExitError(ExitFailure, "stored trace is corrupt", err)
		}
		if run.ScenarioHash != res.ScenarioHash {
			msg := fmt.Sprintf("run %s recorded scenario %s, not %s", run.ID, run.Scenario, sc.Name)
			_ = formatter.Error(ErrCodeNotReplayable, msg, nil)
			return NewExitError(ExitFailure, msg)
		}
		runs = []trace.Run{run}
	} else {
		runs, err = st.ListRuns(ctx, res.ScenarioHash)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
	}

	result := ReplayResult{
		Scenario:         sc.Name,
		ScenarioHash:     res.ScenarioHash,
		Digest:           res.Digest,
		Runs:             make([]ReplayRunResult, 0, len(runs)),
		AllDeterministic: true,
	}
	for _, run := range runs {
		rr := ReplayRunResult{RunID: run.ID, Digest: run.Digest, Deterministic: run.Digest == res.Digest}
		if !rr.Deterministic {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, rr)
		formatter.VerboseLog("Compared run %s: deterministic=%v", run.ID, rr.Deterministic)
	}

	return outputReplay(formatter, result)
}

func outputReplay(formatter *OutputFormatter, result ReplayResult) error {
	failed := 0
	for _, rr := range result.Runs {
		if !rr.Deterministic {
			failed++
		}
	}

	if formatter.IsJSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeDigestMismatch,
				Message: fmt.Sprintf("%d run(s) recorded a different trace", failed),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if len(result.Runs) == 0 {
			fmt.Fprintf(w, "No stored runs for scenario %s.\n", result.Scenario)
			return nil
		}
		fmt.Fprintf(w, "Scenario: %s\n", result.Scenario)
		fmt.Fprintf(w, "Digest: %s\n", result.Digest)
		for _, rr := range result.Runs {
			mark := "✓"
			if !rr.Deterministic {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, rr.RunID)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("determinism check failed for %d run(s)", failed))
	}
	return nil
}
