// Package engine runs compiled pipelines locally and records every step in
// the store.
//
// A run is planned, then executed:
//
//  1. The pipeline is validated against the registered components. Errors
//     reject it before anything is written; binding warnings are returned
//     on the Result, or reject it too when strict bindings are on.
//  2. Tasks are ordered topologically, ties broken by declaration order.
//  3. Each task is bound, invoked and completed on the caller's goroutine.
//     Artifacts flow between tasks as shared handles, so a downstream task
//     observes exactly the URI (custom path or default) the producer wrote.
//  4. The exit handler runs last, receiving parent_run_id.
//
// Every record is stamped from a logical Clock, never wall time, and every
// ID is content-addressed from (run, task, seq), so rerunning a pipeline
// under the same run ID in an empty store produces an identical trace.
package engine
