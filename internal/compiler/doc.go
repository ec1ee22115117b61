// Package compiler composes template source from editable sections.
//
// Templates are authored in four parts: user parameters, tunables, helper
// functions (plus reusable helper snippets), and the main decision logic.
// Compose joins them, in that order, under fixed header comments into the
// single source file the engine runs.
package compiler
