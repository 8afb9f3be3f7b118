package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING so re-recording the same run is a no-op.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, pipeline, pipeline_hash, pipeline_root, status, start_seq, end_seq, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Pipeline,
		run.PipelineHash,
		run.PipelineRoot,
		run.Status,
		run.StartSeq,
		run.EndSeq,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun sets the terminal status and end seq of a run.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID, status string, endSeq int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, end_seq = ? WHERE id = ?
	`, status, endSeq, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// WriteTaskInvocation inserts a task invocation record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency; other constraint
// violations (unknown run, NOT NULL) still return errors.
func (s *Store) WriteTaskInvocation(ctx context.Context, inv ir.TaskInvocation) error {
	argsJSON, err := marshalArgs(inv.Args)
	if err != nil {
		return fmt.Errorf("write task invocation: %w", err)
	}
	droppedJSON, err := marshalDropped(inv.Dropped)
	if err != nil {
		return fmt.Errorf("write task invocation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_invocations
		(id, run_id, task_id, component, args, dropped, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		inv.ID,
		inv.RunID,
		inv.TaskID,
		inv.Component,
		argsJSON,
		droppedJSON,
		inv.Seq,
	)
	if err != nil {
		return fmt.Errorf("write task invocation: %w", err)
	}
	return nil
}

// WriteTaskCompletion inserts a task completion record.
// Each task completes at most once per run (UNIQUE(run_id, task_id));
// a second write for the same task is silently ignored.
//
// An empty InvocationID is stored as NULL. Skipped tasks never started.
func (s *Store) WriteTaskCompletion(ctx context.Context, comp ir.TaskCompletion) error {
	resultJSON, err := marshalValue(comp.Result)
	if err != nil {
		return fmt.Errorf("write task completion: %w", err)
	}

	var invocationID sql.NullString
	if comp.InvocationID != "" {
		invocationID = sql.NullString{String: comp.InvocationID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_completions
		(id, invocation_id, run_id, task_id, outcome, result, error, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		comp.ID,
		invocationID,
		comp.RunID,
		comp.TaskID,
		comp.Outcome,
		resultJSON,
		comp.Error,
		comp.Seq,
	)
	if err != nil {
		return fmt.Errorf("write task completion: %w", err)
	}
	return nil
}

// WriteArtifact records the current state of an artifact.
// The first write fixes its producer and URI; later writes under the same
// ID replace the value and seq, which is how in-place mutation by a
// downstream task is persisted.
func (s *Store) WriteArtifact(ctx context.Context, art ir.ArtifactRecord) error {
	valueJSON, err := marshalValue(art.Value)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts
		(id, run_id, task_id, output, uri, custom, value, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value, seq = excluded.seq
	`,
		art.ID,
		art.RunID,
		art.TaskID,
		art.Output,
		art.URI,
		art.Custom,
		valueJSON,
		art.Seq,
	)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// WriteArtifactRead records that an invocation was handed an artifact.
// Uses ON CONFLICT DO NOTHING for idempotency.
//
// Both the invocation and the artifact must already exist (foreign keys).
func (s *Store) WriteArtifactRead(ctx context.Context, read ir.ArtifactRead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifact_reads
		(invocation_id, artifact_id, param, uri, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		read.InvocationID,
		read.ArtifactID,
		read.Param,
		read.URI,
		read.Seq,
	)
	if err != nil {
		return fmt.Errorf("write artifact read: %w", err)
	}
	return nil
}
