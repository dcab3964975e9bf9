package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempo/internal/timeval"
	"github.com/roach88/tempo/internal/trace"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database     string
	ScenarioHash string
}

// RunSummary describes a stored run without its entries.
type RunSummary struct {
	ID            string `json:"id"`
	Scenario      string `json:"scenario"`
	ScenarioHash  string `json:"scenario_hash"`
	Status        string `json:"status"`
	FinalTime     string `json:"final_time"`
	Digest        string `json:"digest"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

func summarize(run trace.Run) RunSummary {
	return RunSummary{
		ID:            run.ID,
		Scenario:      run.Scenario,
		ScenarioHash:  run.ScenarioHash,
		Status:        run.Status,
		FinalTime:     timeval.Format(run.FinalTime),
		Digest:        run.Digest,
		EngineVersion: run.EngineVersion,
		IRVersion:     run.IRVersion,
	}
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Long: `List the runs saved with "tempo run --db", oldest first.

Examples:
  tempo runs --db ./tempo.db
  tempo runs --db ./tempo.db --scenario <scenario-hash> --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.ScenarioHash, "scenario", "", "only list runs of the scenario with this hash")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmdContext(cmd), opts.ScenarioHash)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, run := range runs {
		summaries[i] = summarize(run)
	}

	if formatter.IsJSON() {
		return formatter.Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %-6s  %-20s  %10s  %s\n", s.ID, s.Status, s.Scenario, s.FinalTime, shortDigest(s.Digest))
	}
	return nil
}

// shortDigest truncates a digest for display.
func shortDigest(digest string) string {
	if len(digest) > 19 {
		return digest[:19] + "..."
	}
	return digest
}
