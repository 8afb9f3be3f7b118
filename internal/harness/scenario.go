package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: one pipeline run and the
// assertions its trace must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the CUE specs directory, relative to the scenario file.
	Specs string `yaml:"specs"`

	// Pipeline names the pipeline to run.
	Pipeline string `yaml:"pipeline"`

	// RunID fixes the run ID. If empty, runs are named "<name>-1".
	RunID string `yaml:"run_id,omitempty"`

	// PipelineRoot overrides the root for default artifact URIs.
	PipelineRoot string `yaml:"pipeline_root,omitempty"`

	// Strict turns binding warnings into errors.
	Strict bool `yaml:"strict,omitempty"`

	// ExpectError is the runtime error code the run must be rejected with
	// (e.g. INVALID_BINDING). When set, assertions are optional.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the recorded run.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates part of a recorded run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Task is the task the assertion is about.
	Task string `yaml:"task,omitempty"`

	// Output is the task output (artifact_path, artifact_value).
	// Default: "Output".
	Output string `yaml:"output,omitempty"`

	// Param is the consuming parameter (observed_path).
	Param string `yaml:"param,omitempty"`

	// Status is the expected run status (run_status).
	Status string `yaml:"status,omitempty"`

	// Outcome is the expected task outcome (task_outcome).
	Outcome string `yaml:"outcome,omitempty"`

	// URI is the expected artifact URI (artifact_path, observed_path).
	URI string `yaml:"uri,omitempty"`

	// Custom, when set, is whether the URI must be a custom path
	// (artifact_path).
	Custom *bool `yaml:"custom,omitempty"`

	// Tasks is the expected start order (task_order). Other tasks may
	// start in between.
	Tasks []string `yaml:"tasks,omitempty"`

	// Value is the expected final artifact value (artifact_value).
	Value any `yaml:"value,omitempty"`

	// Contains must be a substring of the task's error (task_error).
	Contains string `yaml:"contains,omitempty"`

	// Args are the argument names the invocation dropped (dropped_args).
	Args []string `yaml:"args,omitempty"`
}

// Assertion type constants.
const (
	AssertRunStatus     = "run_status"
	AssertTaskOutcome   = "task_outcome"
	AssertArtifactPath  = "artifact_path"
	AssertObservedPath  = "observed_path"
	AssertTaskOrder     = "task_order"
	AssertArtifactValue = "artifact_value"
	AssertTaskError     = "task_error"
	AssertDroppedArgs   = "dropped_args"
)

// LoadScenario reads and parses a scenario YAML file. The specs path is
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) {
		scenario.Specs = filepath.Join(filepath.Dir(path), scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate scenario name %q in %s and %s", sc.Name, prev, p)
		}
		seen[sc.Name] = p
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Specs == "" {
		return fmt.Errorf("specs is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}
	if s.Pipeline == "" {
		return fmt.Errorf("pipeline is required")
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	need := func(ok bool, field string) error {
		if !ok {
			return fmt.Errorf("assertions[%d]: %s is required for %s", index, field, a.Type)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRunStatus:
		return need(a.Status != "", "status")
	case AssertTaskOutcome:
		if err := need(a.Task != "", "task"); err != nil {
			return err
		}
		return need(a.Outcome != "", "outcome")
	case AssertArtifactPath:
		if err := need(a.Task != "", "task"); err != nil {
			return err
		}
		return need(a.URI != "", "uri")
	case AssertObservedPath:
		if err := need(a.Task != "", "task"); err != nil {
			return err
		}
		if err := need(a.Param != "", "param"); err != nil {
			return err
		}
		return need(a.URI != "", "uri")
	case AssertTaskOrder:
		return need(len(a.Tasks) > 0, "tasks")
	case AssertArtifactValue:
		if err := need(a.Task != "", "task"); err != nil {
			return err
		}
		return need(a.Value != nil, "value")
	case AssertTaskError:
		if err := need(a.Task != "", "task"); err != nil {
			return err
		}
		return need(a.Contains != "", "contains")
	case AssertDroppedArgs:
		return need(a.Task != "", "task")
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
}
