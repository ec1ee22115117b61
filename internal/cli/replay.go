package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/input"
	"github.com/roach88/powsim/internal/ir"
	"github.com/roach88/powsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult compares a recorded run with its re-execution.
type ReplayResult struct {
	RunID           string         `json:"run_id"`
	Identical       bool           `json:"identical"`
	TemplateChanged bool           `json:"template_changed"`
	Differences     []string       `json:"differences,omitempty"`
	Recorded        *ReplayOutcome `json:"recorded"`
	Replayed        *ReplayOutcome `json:"replayed"`
}

// ReplayOutcome is the comparable part of one execution.
type ReplayOutcome struct {
	Success     bool              `json:"success"`
	Action      *string           `json:"action"`
	Description *string           `json:"description"`
	Error       *string           `json:"error,omitempty"`
	Decisions   []engine.Decision `json:"decisions"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}
	var sections func() sectionFlags

	cmd := &cobra.Command{
		Use:   "replay --db <path> <run-id> <template>",
		Short: "Re-run a recorded run and compare the results",
		Long: `Re-execute the input of a recorded run against a template, with "now"
pinned to the time the run was recorded, and compare success, action,
description and the decision log with what was recorded.

Use the template the run was recorded with to check that a run is
reproducible, or a newer version to see how its decisions changed.

Exit codes:
  0 - The replay matches the recorded run
  1 - The replay differs
  2 - Command error (unknown run, unreadable template, database errors)

Examples:
  powsim replay --db history.db 0190c3c2-... peak.go
  powsim replay --db history.db 0190c3c2-... peak.yaml --ai-tunables 'const spikeMargin = 2.0'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, sections(), args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history database (required)")
	_ = cmd.MarkFlagRequired("db")
	sections = bindSectionFlags(cmd)

	return cmd
}

func runReplay(opts *ReplayOptions, overrides sectionFlags, runID, templatePath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	defer st.Close()

	run, err := st.ReadRun(context.Background(), runID)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	source, err := loadTemplate(templatePath, overrides)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}

	in, err := input.Parse([]byte(run.Input), input.FormatJSON, "run "+run.ID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	recordedAt := run.CreatedAt
	eng := engine.New(
		engine.WithClock(engine.ClockFunc(func() time.Time { return recordedAt })),
		engine.WithLocation(opts.location()),
		engine.WithLogger(logger),
	)
	res, _, err := eng.Run(source, in)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeInvalidInput, err.Error(), nil)
	}

	result := ReplayResult{
		RunID:           run.ID,
		TemplateChanged: ir.TemplateHash(source) != run.TemplateHash,
		Recorded: &ReplayOutcome{
			Success:     run.Success,
			Action:      run.Action,
			Description: run.Description,
			Error:       run.Error,
			Decisions:   run.Decisions,
		},
		Replayed: &ReplayOutcome{
			Success:     res.Success,
			Action:      res.Action,
			Description: res.Description,
			Error:       res.Error,
			Decisions:   res.Decisions.Reasons,
		},
	}
	result.Differences, err = compareOutcomes(result.Recorded, result.Replayed)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	result.Identical = len(result.Differences) == 0

	logger.Debug("run replayed",
		"run", run.ID,
		"identical", result.Identical,
		"template_changed", result.TemplateChanged,
	)
	return outputReplayResult(formatter, result)
}

// compareOutcomes lists the differences between a recorded and a replayed
// execution. Fault text is not compared: it carries stack traces.
func compareOutcomes(recorded, replayed *ReplayOutcome) ([]string, error) {
	var diffs []string
	if recorded.Success != replayed.Success {
		diffs = append(diffs, fmt.Sprintf("success: recorded %t, replayed %t", recorded.Success, replayed.Success))
	}
	if orNull(recorded.Action) != orNull(replayed.Action) || (recorded.Action == nil) != (replayed.Action == nil) {
		diffs = append(diffs, fmt.Sprintf("action: recorded %s, replayed %s", quoteOrNull(recorded.Action), quoteOrNull(replayed.Action)))
	}
	if orNull(recorded.Description) != orNull(replayed.Description) || (recorded.Description == nil) != (replayed.Description == nil) {
		diffs = append(diffs, fmt.Sprintf("description: recorded %s, replayed %s", quoteOrNull(recorded.Description), quoteOrNull(replayed.Description)))
	}

	if len(recorded.Decisions) != len(replayed.Decisions) {
		diffs = append(diffs, fmt.Sprintf("decisions: recorded %d, replayed %d", len(recorded.Decisions), len(replayed.Decisions)))
		return diffs, nil
	}
	for i := range recorded.Decisions {
		a, err := ir.MarshalCanonical(recorded.Decisions[i])
		if err != nil {
			return nil, fmt.Errorf("recorded decision %d: %w", i, err)
		}
		b, err := ir.MarshalCanonical(replayed.Decisions[i])
		if err != nil {
			return nil, fmt.Errorf("replayed decision %d: %w", i, err)
		}
		if !bytes.Equal(a, b) {
			diffs = append(diffs, fmt.Sprintf("decision %d: recorded %s, replayed %s", i, a, b))
		}
	}
	return diffs, nil
}

func quoteOrNull(s *string) string {
	if s == nil {
		return "null"
	}
	return fmt.Sprintf("%q", *s)
}

func outputReplayResult(formatter *OutputFormatter, result ReplayResult) error {
	if formatter.Format == "json" {
		if result.Identical {
			return formatter.Success(result)
		}
		_ = writeJSON(formatter.Writer, CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeReplay,
				Message: fmt.Sprintf("replay differs in %d place(s)", len(result.Differences)),
			},
		})
		return NewExitError(ExitFailure, "replay differs from the recorded run")
	}

	w := formatter.Writer
	if result.TemplateChanged {
		fmt.Fprintln(w, "Note: template differs from the one recorded")
	}
	if result.Identical {
		fmt.Fprintf(w, "✓ Run %s replayed identically (%d decision(s))\n", result.RunID, len(result.Replayed.Decisions))
		return nil
	}

	fmt.Fprintf(w, "✗ Run %s replayed differently\n", result.RunID)
	for _, d := range result.Differences {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return NewExitError(ExitFailure, "replay differs from the recorded run")
}
