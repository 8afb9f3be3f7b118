package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainInvocation = "pipekit/invocation/v1"
	DomainCompletion = "pipekit/completion/v1"
	DomainArtifact   = "pipekit/artifact/v1"
	DomainPipeline   = "pipekit/pipeline/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TaskInvocationID computes the content-addressed ID of a task invocation.
// The ID is stable across reruns given the same run ID, resolved args and seq.
func TaskInvocationID(runID, taskID string, args Struct, seq int64) (string, error) {
	if args == nil {
		args = Struct{}
	}
	obj := Struct{
		"run_id":  String(runID),
		"task_id": String(taskID),
		"args":    args,
		"seq":     Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TaskInvocationID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainInvocation, canonical), nil
}

// TaskCompletionID computes the content-addressed ID of a task completion.
// Skipped tasks have no invocation, so they are keyed by run and task.
func TaskCompletionID(runID, taskID, invocationID, outcome string, seq int64) (string, error) {
	obj := Struct{
		"run_id":        String(runID),
		"task_id":       String(taskID),
		"invocation_id": String(invocationID),
		"outcome":       String(outcome),
		"seq":           Int(seq),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TaskCompletionID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCompletion, canonical), nil
}

// ArtifactID computes the identity of an artifact. It depends only on where
// the artifact was produced, so in-place mutation keeps the same ID.
func ArtifactID(runID, taskID, output string) string {
	obj := Struct{
		"run_id":  String(runID),
		"task_id": String(taskID),
		"output":  String(output),
	}
	// Strings only, cannot fail.
	canonical, _ := MarshalCanonical(obj)
	return hashWithDomain(DomainArtifact, canonical)
}

// PipelineHash computes a content hash of a pipeline definition. Runs
// record it so traces can be matched to the definition that produced them.
func PipelineHash(p PipelineSpec) (string, error) {
	tasks := make(List, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		obj, err := taskObject(t)
		if err != nil {
			return "", fmt.Errorf("PipelineHash: task %q: %w", t.ID, err)
		}
		tasks = append(tasks, obj)
	}
	obj := Struct{
		"name":  String(p.Name),
		"tasks": tasks,
	}
	if p.ExitHandler != nil {
		exit, err := taskObject(*p.ExitHandler)
		if err != nil {
			return "", fmt.Errorf("PipelineHash: exit handler: %w", err)
		}
		obj["exit_handler"] = exit
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("PipelineHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPipeline, canonical), nil
}

func taskObject(t TaskSpec) (Struct, error) {
	args := make(Struct, len(t.Args))
	for name, arg := range t.Args {
		if arg.IsRef() {
			args[name] = Struct{"task": String(arg.Task), "output": String(arg.Output)}
			continue
		}
		if arg.Value == nil {
			return nil, fmt.Errorf("argument %q has no value", name)
		}
		args[name] = Struct{"value": arg.Value}
	}
	paths := make(Struct, len(t.OutputPaths))
	for name, uri := range t.OutputPaths {
		paths[name] = String(uri)
	}
	return Struct{
		"id":           String(t.ID),
		"component":    String(t.Component),
		"args":         args,
		"output_paths": paths,
	}, nil
}

// MustTaskInvocationID is like TaskInvocationID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTaskInvocationID(runID, taskID string, args Struct, seq int64) string {
	id, err := TaskInvocationID(runID, taskID, args, seq)
	if err != nil {
		panic(err)
	}
	return id
}
