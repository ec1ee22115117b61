// Package ir provides the value model shared by every powsim package.
//
// Template contexts, input descriptions, and execution results all travel
// through the same small set of Go types. Normalize converts decoded JSON,
// YAML, and CUE data into that set; MarshalCanonical serializes it into
// RFC 8785 canonical JSON for hashing and golden comparison.
//
// This package imports nothing internal.
//
// Key design constraints:
//   - Every number is float64 after normalization
//   - Sequences of numbers are []float64 so templates can do arithmetic
//     without type assertions
//   - Object keys in canonical JSON sort by UTF-16 code units
//   - All JSON tags use snake_case
package ir
