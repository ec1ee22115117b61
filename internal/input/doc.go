// Package input loads input descriptions and validates them against the
// input schema.
//
// An input description is a sparse mapping of variable overrides. It can be
// written as JSON, YAML, or CUE; all three decode to the same normalized
// map[string]any (see ir.Normalize) that engine.Builder consumes.
package input
