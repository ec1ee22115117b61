// Package store provides SQLite-backed run history.
//
// The store is append-only and holds three tables:
//   - suite_runs: one row per suite execution, with status counts
//   - runs: one row per template run (standalone or part of a suite run)
//   - decisions: the decision log of each run, in recording order
//
// Runs are keyed by UUIDv7 and carry the content addresses of their template
// and input (see internal/ir/hash.go), so runs of the same template against
// the same input can be found without comparing source text.
//
// # Ordering
//
// Every list query orders by created_at DESC, id DESC: newest first, and
// deterministic when two rows share a timestamp.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
