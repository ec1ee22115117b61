// Package harness runs template test suites.
//
// # Suite Format
//
// Suites are YAML files with the following structure:
//
//	name: evening-peak
//	description: "Discharge into the evening price spike"
//	template: ../templates/peak.tmpl        # or sections: / sections_file:
//	now: "2024-06-01T12:00:00"            # optional fixed clock
//	overrides:                            # sections only
//	  user_params: "const reserve = 30.0"
//	defaults: { sell_price: 12 }          # merged under every case input
//	cases:
//	  - name: cheap-overnight
//	    input: { buy_price: 5, soc: 30 }  # or input_file: inputs/x.json
//	    expect: { action: charge, description: "cheap power" }
//	    assertions:
//	      - type: decision_contains
//	        action: charge
//	        fields: { spread: 7 }
//
// Unknown fields are rejected so a typo never silently disables a check.
//
// # Case Status
//
// Every case ends in one of four states:
//
//   - error: the run faulted and the case did not declare expect.success: false
//   - fail: an expectation or an assertion did not hold, or the golden
//     snapshot differs
//   - pending: nothing to compare against (no expectations, or the run
//     produced neither an action nor a description)
//   - pass: every expectation and assertion held
//
// # Assertion Types
//
//   - decision_contains: a decision with the given action, description and
//     extra fields (subset match) was recorded
//   - decision_order: the given actions were first recorded in this order
//   - decision_count: exactly N decisions (optionally for one action)
//   - final_context: the final context holds the given variable values
//   - error_contains: the run faulted with text containing a substring
//
// # Golden Snapshots
//
// When a case has a snapshot at <suite dir>/golden/<suite>/<case>.golden the
// case's result must match it byte for byte (canonical JSON). Runner option
// Update rewrites the snapshots instead.
package harness
