package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/pipekit/internal/ir"
)

// createTestStore opens a fresh file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestRun(id string, startSeq int64) ir.Run {
	return ir.Run{
		ID:            id,
		Pipeline:      "pipeline-with-custom-path-artifact",
		PipelineHash:  "test-hash",
		PipelineRoot:  "/tmp/pipekit",
		Status:        ir.RunRunning,
		StartSeq:      startSeq,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
}

func createTestInvocation(id, runID, taskID string, seq int64) ir.TaskInvocation {
	return ir.TaskInvocation{
		ID:        id,
		RunID:     runID,
		TaskID:    taskID,
		Component: "create_list",
		Args:      ir.Struct{},
		Seq:       seq,
	}
}

func createTestCompletion(id, invocationID, runID, taskID string, seq int64) ir.TaskCompletion {
	return ir.TaskCompletion{
		ID:           id,
		InvocationID: invocationID,
		RunID:        runID,
		TaskID:       taskID,
		Outcome:      ir.OutcomeSucceeded,
		Seq:          seq,
	}
}

// mustWrite fails the test on the first write error.
func mustWrite(t *testing.T, writes ...error) {
	t.Helper()
	for i, err := range writes {
		if err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
}

// seedRun writes a two-task run resembling the custom path fixture:
// create-list produces Output at a custom path and validate-custom-path
// reads it and fails.
func seedRun(t *testing.T, s *Store, runID string) {
	t.Helper()
	ctx := context.Background()

	id := func(name string) string { return runID + "/" + name }
	artID := ir.ArtifactID(runID, "create-list", ir.DefaultOutput)
	produce := createTestInvocation(id("inv-create"), runID, "create-list", 2)
	consume := ir.TaskInvocation{
		ID:        id("inv-validate"),
		RunID:     runID,
		TaskID:    "validate-custom-path",
		Component: "validate_custom_path",
		Args: ir.Struct{
			"exp_path":   ir.String(""),
			"input_list": ir.String("/etc/test/file/path"),
		},
		Dropped: []string{"path"},
		Seq:     5,
	}

	mustWrite(t,
		s.WriteRun(ctx, createTestRun(runID, 1)),
		s.WriteTaskInvocation(ctx, produce),
		s.WriteArtifact(ctx, ir.ArtifactRecord{
			ID: artID, RunID: runID, TaskID: "create-list", Output: ir.DefaultOutput,
			URI: "/etc/test/file/path", Custom: true, Value: ir.Ints(1, 2, 3, 4), Seq: 3,
		}),
		s.WriteTaskCompletion(ctx, ir.TaskCompletion{
			ID: id("comp-create"), InvocationID: id("inv-create"), RunID: runID, TaskID: "create-list",
			Outcome: ir.OutcomeSucceeded, Result: ir.Ints(1, 2, 3, 4), Seq: 4,
		}),
		s.WriteTaskInvocation(ctx, consume),
		s.WriteArtifactRead(ctx, ir.ArtifactRead{
			InvocationID: id("inv-validate"), ArtifactID: artID, Param: "input_list",
			URI: "/etc/test/file/path", Seq: 6,
		}),
		s.WriteTaskCompletion(ctx, ir.TaskCompletion{
			ID: id("comp-validate"), InvocationID: id("inv-validate"), RunID: runID, TaskID: "validate-custom-path",
			Outcome: ir.OutcomeFailed, Error: "File uri is /etc/test/file/path but should be .", Seq: 7,
		}),
		s.FinishRun(ctx, runID, ir.RunFailed, 8),
	)
}
