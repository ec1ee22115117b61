package engine

import "fmt"

// Outcome is the raw result of one execution: the mutated context on
// success, the diagnostic text on a fault.
type Outcome struct {
	ctx   *Context
	fault string
	ok    bool

	// Output is whatever the template printed to stdout or stderr.
	Output string
}

// Completed returns a successful outcome carrying ctx.
func Completed(ctx *Context) Outcome {
	return Outcome{ctx: ctx, ok: true}
}

// Faulted returns a failed outcome carrying the diagnostic text.
func Faulted(text string) Outcome {
	return Outcome{fault: text}
}

// Context returns the final context, or nil after a fault.
func (o Outcome) Context() *Context {
	if !o.ok {
		return nil
	}
	return o.ctx
}

// Fault returns the diagnostic text and true if the execution faulted.
func (o Outcome) Fault() (string, bool) {
	return o.fault, !o.ok
}

// Result is the normalized report of one execution.
//
// Nil pointers and nil interface fields serialize as JSON null. A faulted
// result always has Action and Description nil and an empty decision log.
type Result struct {
	Success               bool       `json:"success"`
	Error                 *string    `json:"error"`
	Action                *string    `json:"action"`
	Description           *string    `json:"description"`
	Decisions             Structured `json:"decisions"`
	FeedInPowerLimitation any        `json:"feed_in_power_limitation"`
	OptimalCharging       any        `json:"optimal_charging"`
	CheapPowerAvailable   any        `json:"cheap_power_available"`
}

// ActionOr returns the action, or fallback when it is null.
func (r *Result) ActionOr(fallback string) string {
	if r.Action == nil {
		return fallback
	}
	return *r.Action
}

// DescriptionOr returns the description, or fallback when it is null.
func (r *Result) DescriptionOr(fallback string) string {
	if r.Description == nil {
		return fallback
	}
	return *r.Description
}

// Assemble converts an Outcome into a Result.
func Assemble(o Outcome) *Result {
	if text, failed := o.Fault(); failed {
		return &Result{
			Success:   false,
			Error:     &text,
			Decisions: Structured{Reasons: []Decision{}},
		}
	}

	ctx := o.Context()
	defaults := Defaults(ctx.IntervalTime(), nil)

	res := &Result{
		Success:               true,
		Decisions:             ctx.Recorder().ToStructured(),
		Action:                actionOf(ctx),
		FeedInPowerLimitation: valueOr(ctx, VarFeedInPowerLimitation, defaults),
		OptimalCharging:       valueOr(ctx, VarOptimalCharging, defaults),
		CheapPowerAvailable:   valueOr(ctx, VarCheapPowerAvailable, defaults),
	}

	if reasons := res.Decisions.Reasons; len(reasons) > 0 {
		desc := reasons[len(reasons)-1].Description
		res.Description = &desc
	}
	return res
}

// actionOf reads the action variable. Non-string values are formatted, nil
// stays null, and a missing variable reports DefaultAction.
func actionOf(ctx *Context) *string {
	raw, ok := ctx.Get(VarAction)
	if !ok {
		a := DefaultAction
		return &a
	}
	if raw == nil {
		return nil
	}
	a, isString := raw.(string)
	if !isString {
		a = fmt.Sprint(raw)
	}
	return &a
}

func valueOr(ctx *Context, name string, defaults map[string]any) any {
	if v, ok := ctx.Get(name); ok {
		return v
	}
	return defaults[name]
}
