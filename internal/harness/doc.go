// Package harness runs conformance scenarios against the local runner.
//
// A scenario names a directory of CUE specs, a pipeline in it and a set of
// assertions over the resulting run. Each scenario executes in a fresh
// in-memory store through engine.Runner with the components of the
// harness's registry, so a passing scenario means the real engine produced
// the asserted trace.
//
// Before running, the harness checks that every component declared in CUE
// matches the registered implementation's declaration. A CUE file cannot
// silently drift from the Go code it describes.
//
// Traces can be compared against golden snapshots (canonical JSON, without
// content-addressed IDs) with RunWithGolden. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
