// Package store provides the SQLite-backed run log for pipeline executions.
//
// The log records, per run:
//   - Runs: pipeline name, definition hash, pipeline root, status
//   - Task invocations: resolved arguments a task started with
//   - Task completions: Succeeded, Failed or Skipped, with result or error
//   - Artifacts: URI, custom-path flag and latest value, keyed by producer
//   - Artifact reads: which invocation observed which artifact, and at what URI
//
// Ordering uses the logical seq column, never timestamps. Every list query
// orders by seq ASC, id COLLATE BINARY ASC so reads are identical across
// reruns. Writes of invocations and completions are idempotent on their
// content-addressed IDs; artifact writes upsert so in-place mutation
// replaces the stored value under the same ID.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Artifact contents live in this database. Nothing is written to an
// artifact's URI on the local filesystem.
package store
