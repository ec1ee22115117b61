package engine

import (
	"bytes"
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"maps"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// The context is handed to the interpreter as a binary package imported
// under envAlias. Every exposed variable V is the package symbol "V_"+V and
// its type is the package type "T_"+V.
const (
	envPath    = "powsim/env"
	envAlias   = "__env"
	envPrefix  = "V_"
	envTypePfx = "T_"
)

// Executor runs templates against Contexts.
//
// Each Run creates a fresh interpreter with the Go standard library loaded.
// Template code is trusted: nothing is sandboxed and there is no timeout.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor that logs nothing.
func NewExecutor() *Executor {
	return &Executor{logger: discardLogger()}
}

// WithLogger returns a copy of e that logs to logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	cp := *e
	if logger != nil {
		cp.logger = logger
	}
	return &cp
}

// Run executes source with ctx as its variable scope.
//
// On success every exposed variable, and every new top-level variable or
// constant the template declared, is written back into ctx and the outcome
// carries ctx. On any fault (syntax or type error, panic, unknown symbol) the
// outcome carries the diagnostic text instead and ctx must be discarded.
func (e *Executor) Run(source string, ctx *Context) (out Outcome) {
	var output bytes.Buffer
	defer func() {
		if r := recover(); r != nil {
			out = Faulted(fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack()))
			out.Output = output.String()
		}
	}()

	s, err := e.open(ctx, &output)
	if err != nil {
		return Faulted(err.Error())
	}

	chunks := LowerChunks(SplitChunks(source))
	for _, c := range chunks {
		if _, err := s.interp.Eval(c.Source()); err != nil {
			e.logger.Debug("template fault", "line", c.Line, "kind", c.Kind.String(), "error", err)
			out = Faulted(describeFault(err))
			out.Output = output.String()
			return out
		}
	}

	if err := s.collect(); err != nil {
		out = Faulted(describeFault(err))
		out.Output = output.String()
		return out
	}

	for _, name := range slices.Sorted(maps.Keys(s.exported)) {
		ctx.Set(name, s.exported[name])
	}

	e.logger.Debug("template executed",
		"chunks", len(chunks),
		"exported", len(s.exported),
		"decisions", ctx.Recorder().Len(),
	)

	out = Completed(ctx)
	out.Output = output.String()
	return out
}

// Check compiles source against ctx without running it. ctx is not modified.
func (e *Executor) Check(source string, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check template: panic: %v", r)
		}
	}()

	s, err := e.open(ctx, &bytes.Buffer{})
	if err != nil {
		return err
	}
	for _, c := range LowerChunks(SplitChunks(source)) {
		if _, err := s.interp.Compile(c.Source()); err != nil {
			return fmt.Errorf("check template: %w", err)
		}
	}
	return nil
}

// session is one interpreter bound to one context.
type session struct {
	interp   *interp.Interpreter
	exposed  []string
	types    map[string]reflect.Type
	exported map[string]any
}

// open creates an interpreter, installs the context package, declares one
// top-level variable per exposed context variable, then assigns it.
//
// Declaration and assignment are separate steps: a variable whose type is
// written out in source is an ordinary interpreter value that template
// declarations can index, range over and initialize from.
func (e *Executor) open(ctx *Context, output *bytes.Buffer) (*session, error) {
	s := &session{
		types:    map[string]reflect.Type{},
		exported: map[string]any{},
	}

	i := interp.New(interp.Options{Stdout: output, Stderr: output})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}

	for _, name := range ctx.Names() {
		if !exposable(name) {
			e.logger.Debug("variable not exposed to template", "name", name)
			continue
		}
		s.exposed = append(s.exposed, name)
	}

	syms, err := s.bindings(ctx)
	if err != nil {
		return nil, fmt.Errorf("bind context: %w", err)
	}
	if err := i.Use(syms); err != nil {
		return nil, fmt.Errorf("bind context: %w", err)
	}
	if _, err := i.Eval(s.declarations()); err != nil {
		return nil, fmt.Errorf("declare context variables: %w", err)
	}
	if len(s.exposed) > 0 {
		if _, err := i.Eval(s.assignments()); err != nil {
			return nil, fmt.Errorf("assign context variables: %w", err)
		}
	}

	s.interp = i
	return s, nil
}

// bindings builds the context package: one addressable symbol and one type
// per exposed variable, plus Export, which the epilogue calls to hand
// values back.
func (s *session) bindings(ctx *Context) (interp.Exports, error) {
	syms := map[string]reflect.Value{
		"Export": reflect.ValueOf(func(name string, value interface{}) {
			if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
				return
			}
			s.exported[name] = value
		}),
	}

	for _, name := range s.exposed {
		value, _ := ctx.Get(name)
		typ := bindingType(name, value)

		v := reflect.New(typ).Elem()
		if value != nil {
			rv := reflect.ValueOf(value)
			if !rv.Type().AssignableTo(typ) {
				return nil, fmt.Errorf("%s: %T is not %s", name, value, typ)
			}
			v.Set(rv)
		}
		s.types[name] = typ
		syms[envPrefix+name] = v
		syms[envTypePfx+name] = reflect.Zero(reflect.PointerTo(typ))
	}

	return interp.Exports{envPath + "/env": syms}, nil
}

// bindingType is the Go type a variable is declared with: the fixed type
// of a recognized variable, otherwise the type of its value.
func bindingType(name string, value any) reflect.Type {
	if t, ok := VariableType(name); ok {
		return t
	}
	if value == nil {
		return anyType
	}
	return reflect.TypeOf(value)
}

func (s *session) declarations() string {
	var b strings.Builder
	fmt.Fprintf(&b, "import %s %q\n", envAlias, envPath)
	if len(s.exposed) == 0 {
		return b.String()
	}
	b.WriteString("var (\n")
	for _, name := range s.exposed {
		expr, ok := typeExpr(s.types[name])
		if !ok {
			expr = envAlias + "." + envTypePfx + name
		}
		fmt.Fprintf(&b, "\t%s %s\n", name, expr)
	}
	b.WriteString(")\n")
	return b.String()
}

func (s *session) assignments() string {
	var b strings.Builder
	for _, name := range s.exposed {
		fmt.Fprintf(&b, "%s = %s.%s%s\n", name, envAlias, envPrefix, name)
	}
	return b.String()
}

// typeExpr writes t as Go source when it is built only from predeclared
// types, slices, maps and the empty interface.
func typeExpr(t reflect.Type) (string, bool) {
	if t.Name() != "" {
		return t.Name(), t.PkgPath() == ""
	}
	switch t.Kind() {
	case reflect.Slice:
		elem, ok := typeExpr(t.Elem())
		return "[]" + elem, ok
	case reflect.Map:
		key, keyOK := typeExpr(t.Key())
		elem, elemOK := typeExpr(t.Elem())
		return "map[" + key + "]" + elem, keyOK && elemOK
	case reflect.Interface:
		return "interface{}", t.NumMethod() == 0
	}
	return "", false
}

// collect reads every exposed variable and every new global back out of the
// interpreter.
func (s *session) collect() error {
	names := slices.Clone(s.exposed)
	for name := range s.interp.Globals() {
		if exposable(name) && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	slices.Sort(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s.Export(%q, %s)\n", envAlias, name, name)
	}
	_, err := s.interp.Eval(b.String())
	return err
}

// exposable reports whether a context variable can be declared as a template
// variable of the same name.
func exposable(name string) bool {
	return token.IsIdentifier(name) && name != "_" && !strings.HasPrefix(name, "__")
}

// describeFault renders an interpreter error as the text reported in a
// failed result. Panics carry the interpreter's stack trace.
func describeFault(err error) string {
	var p interp.Panic
	if errors.As(err, &p) {
		return fmt.Sprintf("panic: %v\n\n%s", p.Value, p.Stack)
	}
	return err.Error()
}
