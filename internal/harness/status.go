package harness

import "fmt"

// DeriveStatus computes a case's status from its expectation and the run's
// actual action and description.
//
// With no expected action or description there is nothing to compare and the
// case is pending. A run that produced neither an action nor a description is
// pending too. Otherwise a set expectation that differs from a non-null
// actual value fails the case.
func DeriveStatus(expect *Expect, action, description *string) Status {
	if expect == nil || (expect.Action == nil && expect.Description == nil) {
		return StatusPending
	}
	if action == nil && description == nil {
		return StatusPending
	}
	if mismatch(expect.Action, action) || mismatch(expect.Description, description) {
		return StatusFail
	}
	return StatusPass
}

func mismatch(expected, actual *string) bool {
	return expected != nil && actual != nil && *expected != *actual
}

// expectationErrors describes every set expectation that differs from a
// non-null actual value.
func expectationErrors(expect *Expect, action, description *string) []string {
	if expect == nil {
		return nil
	}
	var errs []string
	if mismatch(expect.Action, action) {
		errs = append(errs, fmt.Sprintf("action: expected %q, got %q", *expect.Action, *action))
	}
	if mismatch(expect.Description, description) {
		errs = append(errs, fmt.Sprintf("description: expected %q, got %q", *expect.Description, *description))
	}
	return errs
}
