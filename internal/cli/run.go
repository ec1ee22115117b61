package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/input"
	"github.com/roach88/powsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strict   bool
	Database string
	Sets     []string

	// Clock allows overriding "now" (for testing). If nil, the system clock.
	Clock engine.Clock
	// IDs allows overriding the run ID generator (for testing).
	IDs store.IDGenerator
}

// usageFault is the result printed when a run could not start.
type usageFault struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	var sections func() sectionFlags

	cmd := &cobra.Command{
		Use:   "run <template> <input>",
		Short: "Run a template against an input description",
		Long: `Run a template once and print the execution result as JSON.

The template is Go source, or a sections file (.yaml, .yml, .cue) that is
composed first. The input is a JSON, YAML or CUE file, or "-" for JSON on
stdin. Whatever the template prints goes to stderr.

Exit codes:
  0 - The template completed
  1 - The template faulted (the result reports the fault)
  2 - The template or input could not be read; nothing ran

Examples:
  powsim run peak.go inputs/evening.json
  powsim run peak.go inputs/evening.json --set buy_price=4.5 --set soc=30
  powsim run peak.yaml - --user-params 'const reserve = 30.0' < input.json
  powsim run peak.go input.yaml --strict --db history.db`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return outputUsageFault(cmd, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplate(opts, sections(), args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "validate the input against the schema before running")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this history database")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "override an input key (KEY=VALUE, VALUE parsed as JSON); repeatable")
	sections = bindSectionFlags(cmd)

	return cmd
}

func runTemplate(opts *RunOptions, overrides sectionFlags, templatePath, inputPath string, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	source, err := loadTemplate(templatePath, overrides)
	if err != nil {
		return outputUsageFault(cmd, err)
	}

	in, err := loadInput(inputPath, cmd.InOrStdin(), opts.Sets)
	if err != nil {
		return outputUsageFault(cmd, err)
	}

	if opts.Strict {
		if err := input.Validate(in); err != nil {
			return outputUsageFault(cmd, err)
		}
	}

	// One instant serves as the engine's "now" and the history timestamp,
	// so a recorded run can be replayed against the same interval_time.
	clock := opts.Clock
	if clock == nil {
		clock = engine.SystemClock{}
	}
	now := clock.Now()
	pinned := engine.ClockFunc(func() time.Time { return now })

	eng := engine.New(
		engine.WithClock(pinned),
		engine.WithLocation(opts.location()),
		engine.WithLogger(logger),
	)
	out, err := eng.Execute(source, in)
	if err != nil {
		return outputUsageFault(cmd, err)
	}
	res := engine.Assemble(out)

	if out.Output != "" {
		fmt.Fprint(cmd.ErrOrStderr(), out.Output)
	}

	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return WrapExitError(ExitCommandError, "failed to write result", err)
	}

	if opts.Database != "" {
		id, err := recordRun(opts, pinned, source, in, res, out.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		logger.Info("run recorded", "id", id, "db", opts.Database)
	}

	if !res.Success {
		return NewExitError(ExitFailure, "template faulted")
	}
	return nil
}

func recordRun(opts *RunOptions, clock engine.Clock, source string, in map[string]any, res *engine.Result, output string) (string, error) {
	storeOpts := []store.Option{store.WithClock(clock)}
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run, err := store.NewRun(source, in, res)
	if err != nil {
		return "", err
	}
	run.Output = output
	return st.WriteRun(context.Background(), run)
}

// outputUsageFault prints the result of a run that could not start and
// returns the command error exit.
func outputUsageFault(cmd *cobra.Command, err error) error {
	_ = writeJSON(cmd.OutOrStdout(), usageFault{Success: false, Error: "usage: " + err.Error()})
	return WrapExitError(ExitCommandError, "run did not start", err)
}
