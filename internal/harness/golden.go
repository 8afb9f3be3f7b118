package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pipekit/internal/ir"
)

// Snapshot serializes a result as canonical JSON for golden comparison.
// IDs are left out: they are content hashes of what is already shown.
func Snapshot(result *Result) ([]byte, error) {
	events := make(ir.List, len(result.Trace))
	for i, e := range result.Trace {
		events[i] = e.snapshot()
	}

	s := ir.Struct{
		"scenario": ir.String(result.Scenario),
		"events":   events,
	}
	if result.RunID != "" {
		s["run_id"] = ir.String(result.RunID)
	}
	if result.Status != "" {
		s["status"] = ir.String(result.Status)
	}
	if result.ErrorCode != "" {
		s["error_code"] = ir.String(result.ErrorCode)
	}
	return ir.MarshalCanonical(s)
}

// GoldenPath returns the golden file of a scenario inside dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// WriteGolden stores the snapshot of result as its golden file in dir,
// creating dir if needed.
func WriteGolden(dir string, result *Result) error {
	data, err := Snapshot(result)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", result.Scenario, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}
	return os.WriteFile(GoldenPath(dir, result.Scenario), data, 0o644)
}

// MatchGolden compares the snapshot of result with its golden file in dir.
// ok is false when the file does not exist.
func MatchGolden(dir string, result *Result) (match, ok bool, err error) {
	want, err := os.ReadFile(GoldenPath(dir, result.Scenario))
	if errors.Is(err, fs.ErrNotExist) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("read golden file: %w", err)
	}
	got, err := Snapshot(result)
	if err != nil {
		return false, true, fmt.Errorf("snapshot %s: %w", result.Scenario, err)
	}
	return bytes.Equal(want, got), true, nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass. Test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
