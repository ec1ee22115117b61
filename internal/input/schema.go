package input

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/powsim/internal/ir"
)

//go:embed schema.cue
var schemaSource []byte

// Violation is one schema violation.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// SchemaError reports every violation found in one input description.
type SchemaError struct {
	Violations []Violation
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "input does not match schema: " + strings.Join(parts, "; ")
}

// Validator checks input descriptions against the embedded #Input schema.
//
// A Validator is not safe for concurrent use.
type Validator struct {
	ctx *cue.Context
	def cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Input"))
	if err := def.Err(); err != nil {
		return nil, fmt.Errorf("lookup #Input: %w", err)
	}
	return &Validator{ctx: ctx, def: def}, nil
}

// Validate returns a *SchemaError listing all violations, or nil.
func (v *Validator) Validate(input map[string]any) error {
	if input == nil {
		input = map[string]any{}
	}

	// Canonical JSON writes integral floats without a fraction, so values
	// normalized to float64 still satisfy int constraints.
	data, err := ir.MarshalCanonical(input)
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}

	value := v.ctx.CompileBytes(data, cue.Filename("input.json"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode input: %w", err)
	}

	unified := v.def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Violations: violations(err)}
	}
	return nil
}

// Validate checks input against the schema with a fresh Validator.
func Validate(input map[string]any) error {
	v, err := NewValidator()
	if err != nil {
		return err
	}
	return v.Validate(input)
}

func violations(err error) []Violation {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []Violation{{Message: err.Error()}}
	}

	out := make([]Violation, 0, len(errs))
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		path := e.Path()
		if len(path) > 0 && path[0] == "#Input" {
			path = path[1:]
		}
		format, args := e.Msg()
		v := Violation{
			Field:   strings.Join(path, "."),
			Message: fmt.Sprintf(format, args...),
		}
		if seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		out = append(out, v)
	}
	return out
}
