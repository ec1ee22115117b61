package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/powsim/internal/engine"
	"github.com/roach88/powsim/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type      string            // Assertion type for categorization
	Expected  string            // Human-readable expected outcome
	Actual    string            // Human-readable actual outcome
	Decisions []engine.Decision // Full decision log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Decisions) > 0 {
		fmt.Fprintf(&buf, "\nDecision log:\n")
		for i, d := range e.Decisions {
			fmt.Fprintf(&buf, "  [%d] %s: %s", i+1, d.Action, d.Description)
			for _, f := range d.Extra {
				fmt.Fprintf(&buf, " %s=%v", f.Key, f.Value)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// Observation is what an assertion is checked against.
type Observation struct {
	Decisions []engine.Decision
	// Context is the final context, nil when the run faulted.
	Context *engine.Context
	// Fault is the diagnostic text of a faulted run.
	Fault string
}

// EvaluateAssertions checks every assertion against obs and returns the
// messages of those that failed, in assertion order.
func EvaluateAssertions(obs Observation, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(obs, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(obs Observation, a Assertion) error {
	switch a.Type {
	case AssertDecisionContains:
		return assertDecisionContains(obs.Decisions, a)
	case AssertDecisionOrder:
		return assertDecisionOrder(obs.Decisions, a)
	case AssertDecisionCount:
		return assertDecisionCount(obs.Decisions, a)
	case AssertFinalContext:
		return assertFinalContext(obs, a)
	case AssertErrorContains:
		return assertErrorContains(obs, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertDecisionContains checks that some decision matches the assertion's
// action, description and fields. Empty criteria match anything; fields use
// subset semantics.
func assertDecisionContains(decisions []engine.Decision, a Assertion) error {
	for _, d := range decisions {
		if a.Action != "" && d.Action != a.Action {
			continue
		}
		if a.Description != "" && d.Description != a.Description {
			continue
		}
		if matchFields(d, a.Fields) {
			return nil
		}
	}

	return &AssertionError{
		Type:      AssertDecisionContains,
		Expected:  describeCriteria(a),
		Actual:    "no matching decision",
		Decisions: decisions,
	}
}

// assertDecisionOrder checks that the actions were first recorded in the
// given order. They need not be consecutive.
func assertDecisionOrder(decisions []engine.Decision, a Assertion) error {
	positions := make(map[string]int)
	for i, d := range decisions {
		if _, seen := positions[d.Action]; !seen {
			positions[d.Action] = i + 1 // 1-indexed for readability
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:      AssertDecisionOrder,
				Expected:  fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:    fmt.Sprintf("missing action: %s", action),
				Decisions: decisions,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertDecisionOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Decisions: decisions,
			}
		}
	}
	return nil
}

// assertDecisionCount checks the number of decisions, or of decisions for
// one action when the assertion names it.
func assertDecisionCount(decisions []engine.Decision, a Assertion) error {
	count := len(decisions)
	subject := "decisions"
	if a.Action != "" {
		count = 0
		for _, d := range decisions {
			if d.Action == a.Action {
				count++
			}
		}
		subject = "decisions for " + a.Action
	}

	if count != a.Count {
		return &AssertionError{
			Type:      AssertDecisionCount,
			Expected:  fmt.Sprintf("%d %s", a.Count, subject),
			Actual:    fmt.Sprintf("%d %s", count, subject),
			Decisions: decisions,
		}
	}
	return nil
}

// assertFinalContext checks variable values in the final context, subset
// semantics.
func assertFinalContext(obs Observation, a Assertion) error {
	if obs.Context == nil {
		return &AssertionError{
			Type:     AssertFinalContext,
			Expected: "a final context",
			Actual:   "run faulted: " + firstLine(obs.Fault),
		}
	}

	for _, name := range sortedKeys(a.Variables) {
		expected := a.Variables[name]
		actual, ok := obs.Context.Get(name)
		if !ok {
			return &AssertionError{
				Type:      AssertFinalContext,
				Expected:  fmt.Sprintf("variable %q to exist", name),
				Actual:    fmt.Sprintf("variable %q not in context", name),
				Decisions: obs.Decisions,
			}
		}
		if !valuesEqual(expected, actual) {
			return &AssertionError{
				Type:      AssertFinalContext,
				Expected:  fmt.Sprintf("%s = %s", name, render(expected)),
				Actual:    fmt.Sprintf("%s = %s", name, render(actual)),
				Decisions: obs.Decisions,
			}
		}
	}
	return nil
}

// assertErrorContains checks that the run faulted with text containing the
// given substring.
func assertErrorContains(obs Observation, a Assertion) error {
	if obs.Context != nil {
		return &AssertionError{
			Type:      AssertErrorContains,
			Expected:  fmt.Sprintf("a fault containing %q", a.Contains),
			Actual:    "run completed",
			Decisions: obs.Decisions,
		}
	}
	if !strings.Contains(obs.Fault, a.Contains) {
		return &AssertionError{
			Type:     AssertErrorContains,
			Expected: fmt.Sprintf("a fault containing %q", a.Contains),
			Actual:   firstLine(obs.Fault),
		}
	}
	return nil
}

// matchFields checks if the decision carries all expected fields (subset
// match). Extra fields are ignored.
func matchFields(d engine.Decision, expected map[string]interface{}) bool {
	for key, want := range expected {
		got, ok := d.Lookup(key)
		if !ok || !valuesEqual(want, got) {
			return false
		}
	}
	return true
}

// valuesEqual compares an expected value from a suite file with an actual
// value from a run. Both are normalized and compared as canonical JSON, so
// 5 equals 5.0 and a list of ints equals a []float64.
func valuesEqual(expected, actual any) bool {
	e, err := canonical(expected)
	if err != nil {
		return false
	}
	a, err := canonical(actual)
	if err != nil {
		return false
	}
	return bytes.Equal(e, a)
}

func canonical(v any) ([]byte, error) {
	n, err := ir.Normalize(v)
	if err != nil {
		return ir.MarshalCanonical(v)
	}
	return ir.MarshalCanonical(n)
}

// render formats a value for an assertion message.
func render(v any) string {
	data, err := canonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func describeCriteria(a Assertion) string {
	var parts []string
	if a.Action != "" {
		parts = append(parts, "action "+a.Action)
	}
	if a.Description != "" {
		parts = append(parts, fmt.Sprintf("description %q", a.Description))
	}
	if len(a.Fields) > 0 {
		parts = append(parts, "fields "+render(a.Fields))
	}
	return "decision with " + strings.Join(parts, ", ")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
