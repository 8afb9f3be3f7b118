package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pipekit/internal/ir"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, pipeline, pipeline_hash, pipeline_root, status, start_seq, end_seq, engine_version, ir_version`

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns every run in the order they started.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY start_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTaskInvocations returns all invocations of a run.
// Ordered by seq ASC, id COLLATE BINARY ASC.
func (s *Store) ReadTaskInvocations(ctx context.Context, runID string) ([]ir.TaskInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, component, args, dropped, seq
		FROM task_invocations
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task invocations: %w", err)
	}
	defer rows.Close()

	invocations := []ir.TaskInvocation{}
	for rows.Next() {
		inv, err := scanTaskInvocation(rows)
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task invocations: %w", err)
	}
	return invocations, nil
}

// ReadTaskInvocation retrieves a single invocation by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadTaskInvocation(ctx context.Context, id string) (ir.TaskInvocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, task_id, component, args, dropped, seq
		FROM task_invocations
		WHERE id = ?
	`, id)
	return scanTaskInvocation(row)
}

// ReadTaskCompletions returns all completions of a run.
// Ordered by seq ASC, id COLLATE BINARY ASC.
func (s *Store) ReadTaskCompletions(ctx context.Context, runID string) ([]ir.TaskCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invocation_id, run_id, task_id, outcome, result, error, seq
		FROM task_completions
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task completions: %w", err)
	}
	defer rows.Close()

	completions := []ir.TaskCompletion{}
	for rows.Next() {
		comp, err := scanTaskCompletion(rows)
		if err != nil {
			return nil, err
		}
		completions = append(completions, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task completions: %w", err)
	}
	return completions, nil
}

// ReadTaskCompletion retrieves the completion of one task in a run.
// Returns sql.ErrNoRows if the task has not completed.
func (s *Store) ReadTaskCompletion(ctx context.Context, runID, taskID string) (ir.TaskCompletion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invocation_id, run_id, task_id, outcome, result, error, seq
		FROM task_completions
		WHERE run_id = ? AND task_id = ?
	`, runID, taskID)
	return scanTaskCompletion(row)
}

// ReadArtifacts returns all artifacts of a run in the order they were last
// written.
func (s *Store) ReadArtifacts(ctx context.Context, runID string) ([]ir.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, output, uri, custom, value, seq
		FROM artifacts
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []ir.ArtifactRecord{}
	for rows.Next() {
		art, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

// ReadArtifact retrieves an artifact by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadArtifact(ctx context.Context, id string) (ir.ArtifactRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, task_id, output, uri, custom, value, seq
		FROM artifacts
		WHERE id = ?
	`, id)
	return scanArtifact(row)
}

// ReadArtifactByURI retrieves the artifact stored at uri within a run.
// Returns sql.ErrNoRows if no artifact of the run has that URI.
func (s *Store) ReadArtifactByURI(ctx context.Context, runID, uri string) (ir.ArtifactRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, task_id, output, uri, custom, value, seq
		FROM artifacts
		WHERE run_id = ? AND uri = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, runID, uri)
	return scanArtifact(row)
}

// ReadArtifactReads returns every artifact hand-off in a run.
// Ordered by seq ASC, then invocation and parameter name.
func (s *Store) ReadArtifactReads(ctx context.Context, runID string) ([]ir.ArtifactRead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.invocation_id, r.artifact_id, r.param, r.uri, r.seq
		FROM artifact_reads r
		JOIN task_invocations i ON r.invocation_id = i.id
		WHERE i.run_id = ?
		ORDER BY r.seq ASC, r.invocation_id COLLATE BINARY ASC, r.param COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query artifact reads: %w", err)
	}
	defer rows.Close()

	reads := []ir.ArtifactRead{}
	for rows.Next() {
		var r ir.ArtifactRead
		if err := rows.Scan(&r.InvocationID, &r.ArtifactID, &r.Param, &r.URI, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan artifact read: %w", err)
		}
		reads = append(reads, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifact reads: %w", err)
	}
	return reads, nil
}

func scanRun(row rowScanner) (ir.Run, error) {
	var run ir.Run
	if err := row.Scan(
		&run.ID, &run.Pipeline, &run.PipelineHash, &run.PipelineRoot, &run.Status,
		&run.StartSeq, &run.EndSeq, &run.EngineVersion, &run.IRVersion,
	); err != nil {
		return ir.Run{}, err
	}
	return run, nil
}

func scanTaskInvocation(row rowScanner) (ir.TaskInvocation, error) {
	var inv ir.TaskInvocation
	var argsJSON, droppedJSON string

	if err := row.Scan(
		&inv.ID, &inv.RunID, &inv.TaskID, &inv.Component, &argsJSON, &droppedJSON, &inv.Seq,
	); err != nil {
		return ir.TaskInvocation{}, err
	}

	args, err := unmarshalArgs(argsJSON)
	if err != nil {
		return ir.TaskInvocation{}, err
	}
	inv.Args = args

	dropped, err := unmarshalDropped(droppedJSON)
	if err != nil {
		return ir.TaskInvocation{}, err
	}
	inv.Dropped = dropped

	return inv, nil
}

func scanTaskCompletion(row rowScanner) (ir.TaskCompletion, error) {
	var comp ir.TaskCompletion
	var invocationID, resultJSON sql.NullString

	if err := row.Scan(
		&comp.ID, &invocationID, &comp.RunID, &comp.TaskID, &comp.Outcome,
		&resultJSON, &comp.Error, &comp.Seq,
	); err != nil {
		return ir.TaskCompletion{}, err
	}
	comp.InvocationID = invocationID.String

	result, err := unmarshalValue(resultJSON)
	if err != nil {
		return ir.TaskCompletion{}, err
	}
	comp.Result = result

	return comp, nil
}

func scanArtifact(row rowScanner) (ir.ArtifactRecord, error) {
	var art ir.ArtifactRecord
	var valueJSON sql.NullString

	if err := row.Scan(
		&art.ID, &art.RunID, &art.TaskID, &art.Output, &art.URI, &art.Custom,
		&valueJSON, &art.Seq,
	); err != nil {
		return ir.ArtifactRecord{}, err
	}

	value, err := unmarshalValue(valueJSON)
	if err != nil {
		return ir.ArtifactRecord{}, err
	}
	art.Value = value

	return art, nil
}
