package harness

import (
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/ir"
	"github.com/roach88/powsim/internal/testutil"
)

// Options configures a Runner.
type Options struct {
	// Filter is a path.Match glob on case names. Empty runs every case.
	Filter string

	// Update rewrites golden snapshots instead of comparing them.
	Update bool

	// Overrides replace template sections for every suite, taking
	// precedence over the suite's own overrides.
	Overrides SectionOverrides

	// Location is the zone for "now" and naive timestamps. Default: time.Local.
	Location *time.Location

	// Logger receives progress logs. Default: discard.
	Logger *slog.Logger
}

// Runner runs suites.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a Runner. It fails only for an invalid filter pattern.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Filter != "" {
		if _, err := path.Match(opts.Filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", opts.Filter, err)
		}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{opts: opts, logger: logger}, nil
}

// RunFile loads and runs the suite at path.
func (r *Runner) RunFile(path string) (*SuiteResult, error) {
	suite, err := LoadSuite(path)
	if err != nil {
		return nil, err
	}
	return r.Run(suite)
}

// Run executes every selected case of suite.
//
// Each case gets a fresh context; cases share nothing but the template
// source and, when the suite pins it, the clock. The error is non-nil only
// when the suite itself cannot run (template unreadable, bad "now"); case
// problems are reported in the result.
func (r *Runner) Run(suite *Suite) (*SuiteResult, error) {
	source, err := suite.Source(r.opts.Overrides)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", suite.Name, err)
	}

	eng, err := r.engineFor(suite)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", suite.Name, err)
	}

	result := &SuiteResult{
		Suite:        suite.Name,
		Path:         suite.Path,
		TemplateHash: ir.TemplateHash(source),
		Cases:        []CaseResult{},
		Template:     source,
	}

	for _, c := range suite.Cases {
		if !r.selected(c.Name) {
			continue
		}
		cr := r.runCase(eng, suite, source, c)
		result.Counts.Add(cr.Status)
		result.Cases = append(result.Cases, cr)

		r.logger.Debug("case finished",
			"suite", suite.Name,
			"case", c.Name,
			"status", string(cr.Status),
			"duration_ms", cr.Duration,
		)
	}

	r.logger.Info("suite finished",
		"suite", suite.Name,
		"pass", result.Counts.Pass,
		"fail", result.Counts.Fail,
		"error", result.Counts.Error,
		"pending", result.Counts.Pending,
	)
	return result, nil
}

func (r *Runner) engineFor(suite *Suite) (*engine.Engine, error) {
	opts := []engine.Option{
		engine.WithLocation(r.opts.Location),
		engine.WithLogger(r.logger),
	}
	if suite.Now != "" {
		now, err := engine.ParseTimestamp(suite.Now, r.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("now: %w", err)
		}
		opts = append(opts, engine.WithClock(testutil.NewFixedClock(now)))
	}
	return engine.New(opts...), nil
}

func (r *Runner) selected(name string) bool {
	if r.opts.Filter == "" {
		return true
	}
	ok, _ := path.Match(r.opts.Filter, name)
	return ok
}

// runCase runs one case and derives its status.
func (r *Runner) runCase(eng *engine.Engine, suite *Suite, source string, c Case) CaseResult {
	cr := CaseResult{
		Name:    c.Name,
		Reasons: []engine.Decision{},
		Expect:  c.Expect,
	}

	in, err := suite.CaseInput(c)
	if err != nil {
		cr.Status = StatusError
		cr.Errors = append(cr.Errors, err.Error())
		return cr
	}
	cr.Input = in

	start := time.Now()
	out, err := eng.Execute(source, in)
	cr.Duration = time.Since(start).Milliseconds()
	if err != nil {
		cr.Status = StatusError
		cr.Errors = append(cr.Errors, err.Error())
		return cr
	}

	res := engine.Assemble(out)
	cr.Result = res
	cr.Context = out.Context()
	cr.Output = out.Output
	cr.Action = res.Action
	cr.Description = res.Description
	cr.Reasons = res.Decisions.Reasons

	fault, faulted := out.Fault()
	switch {
	case faulted && c.Expect.ExpectsFault():
		cr.Status = StatusPass
	case faulted:
		cr.Status = StatusError
		cr.Errors = append(cr.Errors, fault)
	case c.Expect.ExpectsFault():
		cr.Status = StatusFail
		cr.Errors = append(cr.Errors, "expected the template to fault, but it completed")
	default:
		cr.Status = DeriveStatus(c.Expect, cr.Action, cr.Description)
		cr.Errors = append(cr.Errors, expectationErrors(c.Expect, cr.Action, cr.Description)...)
	}

	obs := Observation{Decisions: cr.Reasons, Context: cr.Context, Fault: fault}
	for _, msg := range EvaluateAssertions(obs, c.Assertions) {
		cr.AddError(msg)
	}

	msg, err := checkGolden(GoldenPath(suite, c.Name), res, r.opts.Update)
	if err != nil {
		cr.Status = StatusError
		cr.Errors = append(cr.Errors, err.Error())
	} else if msg != "" {
		cr.AddError(msg)
	}
	return cr
}
