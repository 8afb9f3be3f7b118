// Package ir provides the canonical intermediate representation for pipekit.
//
// Components, pipelines and run records are all expressed with the types in
// this package. Every other internal package imports ir; ir imports nothing
// internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - All JSON tags use snake_case
//   - Ordering uses logical seq values, never wall-clock timestamps
//   - Identity is content-addressed (SHA-256 over canonical JSON)
package ir
