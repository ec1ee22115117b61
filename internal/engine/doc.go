// Package engine executes rule templates against a simulated controller
// environment.
//
// A template is a short Go program interpreted by yaegi. It reads the
// controller's variables (battery state, prices, forecasts) as ordinary
// package-level variables, writes its outputs back the same way, and logs
// its reasoning through the decisions recorder.
//
// ARCHITECTURE:
//
// One run flows through four pieces:
//  1. Builder.Build turns a sparse input description into a complete
//     Context: defaults, overrides, the soc alias, and interval_time
//     resolution.
//  2. The Recorder is installed in the Context as "decisions"; the template
//     calls decisions.Reason zero or more times.
//  3. Executor.Run evaluates the template with the Context as its variable
//     scope and captures any fault.
//  4. Assemble turns the Outcome into the normalized Result.
//
// Engine.Run wires the four together.
//
// EXECUTION MODEL:
//
// Every run gets a fresh Context and a fresh interpreter; nothing is shared
// between runs. Execution is synchronous with no timeout: a template that
// never terminates blocks its caller.
//
// RESULT CONTRACT:
//
// The description reported is the description of the LAST recorded
// decision. The action reported is the template's "action" variable, read
// independently of the decision log, so a template that assigns action
// without recording a decision reports that action with a null description.
package engine
