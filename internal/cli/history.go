package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database   string
	Limit      int
	SuiteRunID string
	RunID      string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history --db <path>",
		Short: "List recorded runs",
		Long: `List runs and suite runs recorded with --db, newest first.

With --suite-run, list the case runs of one suite run. With --run, show one
run with its decision log.

Examples:
  powsim history --db history.db
  powsim history --db history.db --limit 5
  powsim history --db history.db --suite-run 0190c3c2-...
  powsim history --db history.db --run 0190c3c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history database (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 for all)")
	cmd.Flags().StringVar(&opts.SuiteRunID, "suite-run", "", "list the case runs of this suite run")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show this run with its decisions")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("suite-run", "run")

	return cmd
}

// HistoryReport is the JSON payload of the history listing.
type HistoryReport struct {
	SuiteRuns []store.SuiteRun `json:"suite_runs,omitempty"`
	Runs      []store.Run      `json:"runs"`
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Limit < 0 {
		return formatter.fail(ExitCommandError, ErrCodeInvalidInput, "--limit must not be negative", nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	ctx := context.Background()

	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
		}
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if formatter.Format == "json" {
			return formatter.Success(run)
		}
		printRun(formatter, run, opts.location())
		return nil
	}

	report := HistoryReport{}
	filter := store.RunFilter{Limit: opts.Limit}
	if opts.SuiteRunID != "" {
		sr, err := st.ReadSuiteRun(ctx, opts.SuiteRunID)
		if errors.Is(err, store.ErrNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
		}
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		report.SuiteRuns = []store.SuiteRun{sr}
		filter.SuiteRunID = sr.ID
	} else {
		report.SuiteRuns, err = st.ListSuiteRuns(ctx, opts.Limit)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
	}

	report.Runs, err = st.ListRuns(ctx, filter)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	printHistory(formatter, report, opts.location())
	return nil
}

func printHistory(formatter *OutputFormatter, report HistoryReport, loc *time.Location) {
	w := formatter.Writer
	if len(report.SuiteRuns) > 0 {
		fmt.Fprintln(w, "Suite runs:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  ID\tSUITE\tPASS\tFAIL\tERROR\tPENDING\tCREATED")
		for _, sr := range report.SuiteRuns {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				sr.ID, sr.Suite, sr.Pass, sr.Fail, sr.Error, sr.Pending, formatTime(sr.CreatedAt, loc))
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(report.Runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	fmt.Fprintln(w, "Runs:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tCASE\tSTATUS\tACTION\tCREATED")
	for _, run := range report.Runs {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			run.ID, orDash(run.Case), runStatus(run), orNull(run.Action), formatTime(run.CreatedAt, loc))
	}
	tw.Flush()
}

func printRun(formatter *OutputFormatter, run store.Run, loc *time.Location) {
	w := formatter.Writer
	fmt.Fprintf(w, "Run %s\n", run.ID)
	if run.SuiteRunID != "" {
		fmt.Fprintf(w, "  Suite run:   %s\n", run.SuiteRunID)
		fmt.Fprintf(w, "  Case:        %s\n", run.Case)
	}
	fmt.Fprintf(w, "  Created:     %s\n", formatTime(run.CreatedAt, loc))
	fmt.Fprintf(w, "  Template:    %s\n", run.TemplateHash)
	fmt.Fprintf(w, "  Input:       %s\n", run.Input)
	fmt.Fprintf(w, "  Status:      %s\n", runStatus(run))
	fmt.Fprintf(w, "  Action:      %s\n", orNull(run.Action))
	fmt.Fprintf(w, "  Description: %s\n", orNull(run.Description))
	if run.Error != nil {
		fmt.Fprintf(w, "  Error:       %s\n", firstLine(*run.Error))
	}

	fmt.Fprintf(w, "\nDecisions (%d):\n", len(run.Decisions))
	for i, d := range run.Decisions {
		fmt.Fprintf(w, "  [%d] %s: %s", i, d.Action, d.Description)
		for _, f := range d.Extra {
			fmt.Fprintf(w, " %s=%v", f.Key, f.Value)
		}
		fmt.Fprintln(w)
	}
}

// runStatus is the case status, or ok/fault for a standalone run.
func runStatus(run store.Run) string {
	if run.Status != "" {
		return run.Status
	}
	if run.Success {
		return "ok"
	}
	return "fault"
}

func formatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
