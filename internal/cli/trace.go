package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempo/internal/store"
	"github.com/roach88/tempo/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // optional - filter to one entry kind
}

// TraceResult holds the trace of a stored run.
type TraceResult struct {
	Run     RunSummary    `json:"run"`
	Entries []trace.Entry `json:"entries"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Show the trace of a stored run",
		Long: `Show the recorded trace of a stored run, one entry per line.

The entries are checked against the digest stored with the run first; a
mismatch means the database was changed after the run was saved.

Examples:
  tempo trace --db ./tempo.db 0190f3b2-...
  tempo trace --db ./tempo.db 0190f3b2-... --kind mark
  tempo trace --db ./tempo.db 0190f3b2-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to entries of one kind (begin, op, fail, end, progress, update, mark)")

	return cmd
}

func runTrace(opts *TraceOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.openStore(opts.Database, cmd)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.VerifyRun(cmdContext(cmd), id)
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("no run with ID %s", id), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	case errors.Is(err, store.ErrDigestMismatch):
		_ = formatter.Error(ErrCodeDigestMismatch, err.Error(), nil)
		return WrapExitError(ExitFailure, "trace verification failed", err)
	case err != nil:
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}

	entries := filterEntries(run.Entries, opts.Kind)
	if formatter.IsJSON() {
		return formatter.JSON(CLIResponse{
			Status: "ok",
			Data:   TraceResult{Run: summarize(run), Entries: entries},
			RunID:  run.ID,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Scenario: %s (%s)\n", run.Scenario, run.Status)
	fmt.Fprintf(w, "Digest: %s\n", run.Digest)
	fmt.Fprintln(w)
	if err := trace.Write(w, entries); err != nil {
		return err
	}
	formatter.VerboseLog("%d of %d entries shown", len(entries), len(run.Entries))
	return nil
}

// filterEntries keeps the entries of one kind. An empty kind keeps all.
func filterEntries(entries []trace.Entry, kind string) []trace.Entry {
	if kind == "" {
		return entries
	}
	kept := []trace.Entry{}
	for _, e := range entries {
		if e.Kind == kind {
			kept = append(kept, e)
		}
	}
	return kept
}
