package engine

import (
	"log/slog"
	"time"
)

// Engine runs templates end to end: build a Context from an input
// description, execute the template against it, assemble the Result.
//
// An Engine holds no per-run state. Every Run gets a fresh Context, a fresh
// Recorder, and a fresh interpreter, so one Engine may be reused for any
// number of runs, one at a time.
type Engine struct {
	clock  Clock
	loc    *time.Location
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock that supplies "now". Default: the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLocation sets the zone for "now" and for timestamps without an offset.
// Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.loc = loc
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:  SystemClock{},
		loc:    time.Local,
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute builds the context for input and runs source against it.
//
// The error is non-nil only for an invocation fault (an *InputError): the
// input could not be turned into a context and nothing ran. Template faults
// are reported through the Outcome.
func (e *Engine) Execute(source string, input map[string]any) (Outcome, error) {
	ctx, err := NewBuilder(e.clock, e.loc).WithLogger(e.logger).Build(input)
	if err != nil {
		return Outcome{}, err
	}

	out := NewExecutor().WithLogger(e.logger).Run(source, ctx)
	if text, failed := out.Fault(); failed {
		e.logger.Info("template faulted", "error", firstLine(text))
	}
	return out, nil
}

// Run executes source against input and returns the Result together with the
// final context. The context is nil when the template faulted.
func (e *Engine) Run(source string, input map[string]any) (*Result, *Context, error) {
	out, err := e.Execute(source, input)
	if err != nil {
		return nil, nil, err
	}
	return Assemble(out), out.Context(), nil
}

// Check compiles source against the context built from input without
// running it. An *InputError means the input itself is invalid.
func (e *Engine) Check(source string, input map[string]any) error {
	ctx, err := NewBuilder(e.clock, e.loc).WithLogger(e.logger).Build(input)
	if err != nil {
		return err
	}
	return NewExecutor().WithLogger(e.logger).Check(source, ctx)
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
