package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/harness"
	"github.com/roach88/powsim/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter   string
	Update   bool
	Database string

	// Clock allows overriding the history timestamp (for testing).
	Clock engine.Clock
	// IDs allows overriding the run ID generator (for testing).
	IDs store.IDGenerator
}

// TestReport is the JSON payload of the test command.
type TestReport struct {
	Suites     []*harness.SuiteResult `json:"suites"`
	Counts     harness.Counts         `json:"counts"`
	LoadErrors []string               `json:"load_errors,omitempty"`
	SuiteRuns  []string               `json:"suite_runs,omitempty"`
}

// Passed reports whether every suite loaded and no case failed or errored.
func (r TestReport) Passed() bool {
	return len(r.LoadErrors) == 0 && r.Counts.Fail == 0 && r.Counts.Error == 0
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return newTestCommand(&TestOptions{RootOptions: rootOpts})
}

func newTestCommand(opts *TestOptions) *cobra.Command {
	var sections func() sectionFlags

	cmd := &cobra.Command{
		Use:   "test <suite-file-or-dir>",
		Short: "Run test suites against their templates",
		Long: `Run YAML test suites. A directory is searched recursively for
*.yaml and *.yml suite files.

Each case runs its input against the suite's template and is compared with
the expected action and description, the case assertions, and the golden
snapshot when one exists.

Exit codes:
  0 - Every case passed or is pending
  1 - A case failed or errored, or a suite could not be loaded
  2 - Command error (bad path, bad filter, database errors)

Examples:
  powsim test suites/
  powsim test suites/peak.yaml --filter 'spike*'
  powsim test suites/ --update
  powsim test suites/ --db history.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, sections(), args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only cases whose name matches this glob")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden snapshots instead of comparing")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the suite runs in this history database")
	sections = bindSectionFlags(cmd)

	return cmd
}

func runTests(opts *TestOptions, overrides sectionFlags, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	files, err := harness.FindSuites(path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if len(files) == 0 {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("no suite files found at %s", path), nil)
	}

	runner, err := harness.NewRunner(harness.Options{
		Filter: opts.Filter,
		Update: opts.Update,
		Overrides: harness.SectionOverrides{
			UserParams: overrides.UserParams,
			AITunables: overrides.AITunables,
		},
		Location: opts.location(),
		Logger:   logger,
	})
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	report := TestReport{Suites: []*harness.SuiteResult{}}
	for _, file := range files {
		formatter.VerboseLog("Running %s", file)
		res, err := runner.RunFile(file)
		if err != nil {
			report.LoadErrors = append(report.LoadErrors, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		report.Suites = append(report.Suites, res)
		addCounts(&report.Counts, res.Counts)
	}

	if opts.Database != "" && len(report.Suites) > 0 {
		ids, err := recordSuites(opts, report.Suites)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		report.SuiteRuns = ids
		logger.Info("suite runs recorded", "count", len(ids), "db", opts.Database)
	}

	if formatter.Format == "json" {
		return outputTestJSON(formatter, report)
	}
	return outputTestText(formatter, report)
}

func addCounts(total *harness.Counts, c harness.Counts) {
	total.Pass += c.Pass
	total.Fail += c.Fail
	total.Error += c.Error
	total.Pending += c.Pending
	total.Total += c.Total
}

func recordSuites(opts *TestOptions, suites []*harness.SuiteResult) ([]string, error) {
	var storeOpts []store.Option
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ctx := context.Background()
	ids := make([]string, 0, len(suites))
	for _, res := range suites {
		runs := make([]store.Run, 0, len(res.Cases))
		for _, cr := range res.Cases {
			run, err := caseRun(res.Template, cr)
			if err != nil {
				return nil, fmt.Errorf("suite %s case %s: %w", res.Suite, cr.Name, err)
			}
			runs = append(runs, run)
		}

		id, err := st.WriteSuiteRun(ctx, store.SuiteRun{
			Suite:        res.Suite,
			Path:         res.Path,
			TemplateHash: res.TemplateHash,
			Pass:         res.Counts.Pass,
			Fail:         res.Counts.Fail,
			Error:        res.Counts.Error,
			Pending:      res.Counts.Pending,
			Total:        res.Counts.Total,
		}, runs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// caseRun describes one case for the history database.
func caseRun(template string, cr harness.CaseResult) (store.Run, error) {
	run, err := store.NewRun(template, cr.Input, cr.Result)
	if err != nil {
		return store.Run{}, err
	}
	run.Case = cr.Name
	run.Status = string(cr.Status)
	run.Output = cr.Output
	if cr.Expect != nil {
		run.ExpectedAction = cr.Expect.Action
		run.ExpectedDescription = cr.Expect.Description
	}
	if cr.Result == nil && len(cr.Errors) > 0 {
		msg := cr.Errors[0]
		run.Error = &msg
	}
	return run, nil
}

func outputTestJSON(formatter *OutputFormatter, report TestReport) error {
	if report.Passed() {
		return formatter.Success(report)
	}

	code, message := testFailure(report)
	_ = writeJSON(formatter.Writer, CLIResponse{
		Status: "error",
		Data:   report,
		Error:  &CLIError{Code: code, Message: message},
	})
	return NewExitError(ExitFailure, message)
}

func outputTestText(formatter *OutputFormatter, report TestReport) error {
	w := formatter.Writer
	for _, suite := range report.Suites {
		fmt.Fprintf(w, "%s (%s)\n", suite.Suite, suite.Path)
		for _, c := range suite.Cases {
			fmt.Fprintf(w, "  %s %s", statusMark(c.Status), c.Name)
			if c.Status == harness.StatusPending {
				fmt.Fprintf(w, " (pending: action=%s)", orNull(c.Action))
			}
			fmt.Fprintln(w)
			for _, msg := range c.Errors {
				fmt.Fprintf(w, "      %s\n", indent(msg, "      "))
			}
		}
	}
	for _, msg := range report.LoadErrors {
		fmt.Fprintf(w, "✗ %s\n", msg)
	}
	for _, id := range report.SuiteRuns {
		formatter.VerboseLog("Recorded suite run %s", id)
	}

	c := report.Counts
	fmt.Fprintf(w, "\n%d passed, %d failed, %d errored, %d pending (%d total)\n",
		c.Pass, c.Fail, c.Error, c.Pending, c.Total)

	if report.Passed() {
		return nil
	}
	_, message := testFailure(report)
	return NewExitError(ExitFailure, message)
}

func testFailure(report TestReport) (code, message string) {
	if len(report.LoadErrors) > 0 {
		return ErrCodeSuite, fmt.Sprintf("%d suite(s) could not be loaded", len(report.LoadErrors))
	}
	return ErrCodeTestFailed, fmt.Sprintf("%d case(s) failed, %d errored", report.Counts.Fail, report.Counts.Error)
}

func statusMark(s harness.Status) string {
	switch s {
	case harness.StatusPass:
		return "✓"
	case harness.StatusPending:
		return "?"
	default:
		return "✗"
	}
}

func orNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
