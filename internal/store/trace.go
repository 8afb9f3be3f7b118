package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/pipekit/internal/ir"
)

// EventType distinguishes entries in a run timeline.
type EventType int

const (
	EventInvocation EventType = iota
	EventArtifactRead
	EventArtifact
	EventCompletion
)

// String returns the event type as a string.
func (t EventType) String() string {
	switch t {
	case EventInvocation:
		return "invocation"
	case EventArtifactRead:
		return "artifact_read"
	case EventArtifact:
		return "artifact"
	case EventCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// Event is one entry in a run timeline. Exactly one of the record
// pointers is set, matching Type.
type Event struct {
	Type       EventType
	Seq        int64
	TaskID     string
	Invocation *ir.TaskInvocation
	Read       *ir.ArtifactRead
	Artifact   *ir.ArtifactRecord
	Completion *ir.TaskCompletion
}

// LineageEdge links an artifact's producer to a task that was handed it.
type LineageEdge struct {
	ArtifactID string
	Producer   string
	Output     string
	Consumer   string
	Param      string
	URI        string // the URI the consumer observed
}

// RunTrace is everything recorded for one run.
type RunTrace struct {
	Run         ir.Run
	Invocations []ir.TaskInvocation
	Completions []ir.TaskCompletion
	Artifacts   []ir.ArtifactRecord
	Reads       []ir.ArtifactRead
}

// ReadTrace loads the full record of a run.
// Returns an error wrapping sql.ErrNoRows if the run does not exist.
func (s *Store) ReadTrace(ctx context.Context, runID string) (RunTrace, error) {
	var tr RunTrace
	var err error

	if tr.Run, err = s.ReadRun(ctx, runID); err != nil {
		return tr, fmt.Errorf("read trace %s: %w", runID, err)
	}
	if tr.Invocations, err = s.ReadTaskInvocations(ctx, runID); err != nil {
		return tr, fmt.Errorf("read trace %s: %w", runID, err)
	}
	if tr.Completions, err = s.ReadTaskCompletions(ctx, runID); err != nil {
		return tr, fmt.Errorf("read trace %s: %w", runID, err)
	}
	if tr.Artifacts, err = s.ReadArtifacts(ctx, runID); err != nil {
		return tr, fmt.Errorf("read trace %s: %w", runID, err)
	}
	if tr.Reads, err = s.ReadArtifactReads(ctx, runID); err != nil {
		return tr, fmt.Errorf("read trace %s: %w", runID, err)
	}
	return tr, nil
}

// Events merges the trace's records into a single timeline ordered by
// seq, then event type, then task ID.
func (tr RunTrace) Events() []Event {
	taskOf := make(map[string]string, len(tr.Invocations))
	events := make([]Event, 0, len(tr.Invocations)+len(tr.Completions)+len(tr.Artifacts)+len(tr.Reads))

	for i := range tr.Invocations {
		inv := &tr.Invocations[i]
		taskOf[inv.ID] = inv.TaskID
		events = append(events, Event{Type: EventInvocation, Seq: inv.Seq, TaskID: inv.TaskID, Invocation: inv})
	}
	for i := range tr.Reads {
		r := &tr.Reads[i]
		events = append(events, Event{Type: EventArtifactRead, Seq: r.Seq, TaskID: taskOf[r.InvocationID], Read: r})
	}
	for i := range tr.Artifacts {
		a := &tr.Artifacts[i]
		events = append(events, Event{Type: EventArtifact, Seq: a.Seq, TaskID: a.TaskID, Artifact: a})
	}
	for i := range tr.Completions {
		c := &tr.Completions[i]
		events = append(events, Event{Type: EventCompletion, Seq: c.Seq, TaskID: c.TaskID, Completion: c})
	}

	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Or(
			cmp.Compare(a.Seq, b.Seq),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.TaskID, b.TaskID),
		)
	})
	return events
}

// Lineage returns one edge per artifact hand-off, in read order.
func (tr RunTrace) Lineage() []LineageEdge {
	arts := make(map[string]ir.ArtifactRecord, len(tr.Artifacts))
	for _, a := range tr.Artifacts {
		arts[a.ID] = a
	}
	consumers := make(map[string]string, len(tr.Invocations))
	for _, inv := range tr.Invocations {
		consumers[inv.ID] = inv.TaskID
	}

	edges := make([]LineageEdge, 0, len(tr.Reads))
	for _, r := range tr.Reads {
		a := arts[r.ArtifactID]
		edges = append(edges, LineageEdge{
			ArtifactID: r.ArtifactID,
			Producer:   a.TaskID,
			Output:     a.Output,
			Consumer:   consumers[r.InvocationID],
			Param:      r.Param,
			URI:        r.URI,
		})
	}
	return edges
}

// Outcome returns the recorded outcome of a task, or "" if it has none.
func (tr RunTrace) Outcome(taskID string) string {
	for _, c := range tr.Completions {
		if c.TaskID == taskID {
			return c.Outcome
		}
	}
	return ""
}

// GetLastSeq returns the highest seq recorded anywhere in the store.
// A runner resumes its logical clock from here so seqs stay unique
// across runs sharing a database.
func (s *Store) GetLastSeq(ctx context.Context) (int64, error) {
	var maxSeq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT MAX(MAX(start_seq), MAX(end_seq)) AS seq FROM runs
			UNION ALL SELECT MAX(seq) FROM task_invocations
			UNION ALL SELECT MAX(seq) FROM task_completions
			UNION ALL SELECT MAX(seq) FROM artifacts
			UNION ALL SELECT MAX(seq) FROM artifact_reads
		)
	`).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return maxSeq, nil
}
