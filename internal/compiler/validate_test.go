package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/ir"
)

func fixtureComponents() []ir.ComponentSpec {
	return []ir.ComponentSpec{
		{Name: "create_list", Params: []ir.ParamSpec{}, Returns: ir.TypeList},
		{Name: "append_to_list", Params: []ir.ParamSpec{
			{Name: "digit", Type: ir.TypeInt, Kind: ir.KindParameter},
			{Name: "input_list", Type: ir.TypeArtifact, Kind: ir.KindOutput},
		}, Returns: ir.TypeList},
		{Name: "validate_custom_path", Params: []ir.ParamSpec{
			{Name: "exp_path", Type: ir.TypeString, Kind: ir.KindParameter},
			{Name: "input_list", Type: ir.TypeArtifact, Kind: ir.KindOutput},
		}, Returns: ir.TypeBool},
	}
}

func byName(cs []ir.ComponentSpec) map[string]ir.ComponentSpec {
	m := make(map[string]ir.ComponentSpec, len(cs))
	for _, c := range cs {
		m[c.Name] = c
	}
	return m
}

func fixturePipeline() ir.PipelineSpec {
	return ir.PipelineSpec{
		Name: "pipeline-with-custom-path-artifact",
		Tasks: []ir.TaskSpec{
			{ID: "create-list", Component: "create_list", OutputPaths: map[string]string{ir.DefaultOutput: "/etc/test/file/path"}},
			{ID: "validate-custom-path", Component: "validate_custom_path", Args: map[string]ir.ArgSpec{
				"path":       ir.Literal(ir.String("/etc/test/file/path")),
				"input_list": ir.Ref("create-list", ir.DefaultOutput),
			}},
		},
	}
}

func codes(diags []ValidationError) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func TestValidateFixtureReportsKeywordMismatch(t *testing.T) {
	diags := Validate(fixtureComponents(), []ir.PipelineSpec{fixturePipeline()})

	require.Len(t, diags, 2)
	assert.Equal(t, WarnUnknownArgument, diags[0].Code)
	assert.Equal(t, "pipeline.pipeline-with-custom-path-artifact.tasks.validate-custom-path.args.path", diags[0].Field)
	assert.Equal(t, WarnUnboundParam, diags[1].Code)
	assert.Contains(t, diags[1].Message, `"exp_path"`)

	assert.Empty(t, Failing(diags, false), "lenient mode accepts the mismatch")
	assert.Len(t, Failing(diags, true), 2, "strict mode rejects it")
}

func TestValidateComponentErrors(t *testing.T) {
	diags := ValidateComponent(ir.ComponentSpec{
		Name: "",
		Params: []ir.ParamSpec{
			{Name: "a", Type: "float", Kind: ir.KindParameter},
			{Name: "a", Type: ir.TypeInt, Kind: "sideways"},
			{Name: "b", Type: ir.TypeInt, Kind: ir.KindOutput},
		},
		Returns: "double",
	}, "components[0]")

	assert.ElementsMatch(t, []string{
		ErrComponentNameEmpty,
		ErrInvalidFieldType, ErrFloatTypeForbidden, // returns
		ErrInvalidFieldType, ErrFloatTypeForbidden, // a
		ErrDuplicateName, ErrInvalidParamKind, // second a
		ErrInvalidParamKind, // b
	}, codes(diags))
}

func TestValidateDuplicateNames(t *testing.T) {
	cs := append(fixtureComponents(), ir.ComponentSpec{Name: "create_list", Params: []ir.ParamSpec{}})
	p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{{ID: "a", Component: "create_list"}}}

	diags := Validate(cs, []ir.PipelineSpec{p, p})
	assert.Equal(t, []string{ErrDuplicateName, ErrDuplicateName}, codes(diags))
}

func TestValidatePipelineStructure(t *testing.T) {
	comps := byName(fixtureComponents())

	tests := []struct {
		name string
		p    ir.PipelineSpec
		want []string
	}{
		{
			name: "no tasks",
			p:    ir.PipelineSpec{Name: "p"},
			want: []string{ErrPipelineNoTasks},
		},
		{
			name: "unknown component",
			p:    ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{{ID: "a", Component: "nope"}}},
			want: []string{ErrUnknownComponent},
		},
		{
			name: "empty and duplicate task IDs",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "", Component: "create_list"},
				{ID: "a", Component: "create_list"},
				{ID: "a", Component: "create_list"},
			}},
			want: []string{ErrInvalidTaskID, ErrDuplicateName},
		},
		{
			name: "unknown task reference",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "b", Component: "append_to_list", Args: map[string]ir.ArgSpec{
					"digit":      ir.Literal(ir.Int(5)),
					"input_list": ir.Ref("ghost", ir.DefaultOutput),
				}},
			}},
			want: []string{ErrUnknownTaskRef},
		},
		{
			name: "unknown output",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "a", Component: "create_list"},
				{ID: "b", Component: "append_to_list", Args: map[string]ir.ArgSpec{
					"digit":      ir.Literal(ir.Int(5)),
					"input_list": ir.Ref("a", "other"),
				}},
			}},
			want: []string{ErrUnknownOutput},
		},
		{
			name: "relative and unknown custom paths",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "a", Component: "create_list", OutputPaths: map[string]string{
					ir.DefaultOutput: "relative/path",
					"nope":           "/abs",
				}},
			}},
			want: []string{ErrInvalidCustomPath, ErrCustomPathUnknownOut},
		},
		{
			name: "URI custom paths are allowed",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "a", Component: "create_list", OutputPaths: map[string]string{ir.DefaultOutput: "gs://bucket/list"}},
			}},
			want: []string{},
		},
		{
			name: "duplicate custom paths",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "a", Component: "create_list", OutputPaths: map[string]string{ir.DefaultOutput: "/same"}},
				{ID: "b", Component: "create_list", OutputPaths: map[string]string{ir.DefaultOutput: "/same"}},
			}},
			want: []string{ErrDuplicateCustomPath},
		},
		{
			name: "cycle",
			p: ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{
				{ID: "a", Component: "append_to_list", Args: map[string]ir.ArgSpec{
					"digit": ir.Literal(ir.Int(1)), "input_list": ir.Ref("b", ir.DefaultOutput),
				}},
				{ID: "b", Component: "append_to_list", Args: map[string]ir.ArgSpec{
					"digit": ir.Literal(ir.Int(2)), "input_list": ir.Ref("a", ir.DefaultOutput),
				}},
			}},
			want: []string{ErrCycleDetected},
		},
		{
			name: "exit handler referenced",
			p: ir.PipelineSpec{
				Name: "p",
				Tasks: []ir.TaskSpec{
					{ID: "b", Component: "append_to_list", Args: map[string]ir.ArgSpec{
						"digit": ir.Literal(ir.Int(2)), "input_list": ir.Ref("exit", ir.DefaultOutput),
					}},
				},
				ExitHandler: &ir.TaskSpec{ID: "exit", Component: "create_list"},
			},
			want: []string{ErrExitHandlerReference},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := Failing(ValidatePipeline(tt.p, comps), false)
			assert.ElementsMatch(t, tt.want, codes(diags))
		})
	}
}

func TestCheckBindings(t *testing.T) {
	comps := byName(append(fixtureComponents(),
		ir.ComponentSpec{Name: "read_only", Params: []ir.ParamSpec{
			{Name: "in", Type: ir.TypeArtifact, Kind: ir.KindInput},
		}},
		ir.ComponentSpec{Name: "notify", Params: []ir.ParamSpec{
			{Name: ir.ParentRunIDParam, Type: ir.TypeString, Kind: ir.KindParameter},
		}},
	))

	tests := []struct {
		name string
		task ir.TaskSpec
		want []string
	}{
		{
			name: "literal bound to artifact",
			task: ir.TaskSpec{ID: "t", Component: "append_to_list", Args: map[string]ir.ArgSpec{
				"digit": ir.Literal(ir.Int(1)), "input_list": ir.Literal(ir.Ints(1)),
			}},
			want: []string{ErrInvalidBinding},
		},
		{
			name: "artifact bound to value parameter",
			task: ir.TaskSpec{ID: "t", Component: "append_to_list", Args: map[string]ir.ArgSpec{
				"digit": ir.Ref("up", ir.DefaultOutput),
			}},
			want: []string{ErrInvalidBinding},
		},
		{
			name: "type mismatch",
			task: ir.TaskSpec{ID: "t", Component: "append_to_list", Args: map[string]ir.ArgSpec{
				"digit": ir.Literal(ir.String("5")),
			}},
			want: []string{WarnTypeMismatch},
		},
		{
			name: "unbound output artifact is allocated",
			task: ir.TaskSpec{ID: "t", Component: "append_to_list", Args: map[string]ir.ArgSpec{
				"digit": ir.Literal(ir.Int(5)),
			}},
			want: []string{},
		},
		{
			name: "unbound input artifact",
			task: ir.TaskSpec{ID: "t", Component: "read_only"},
			want: []string{ErrInvalidBinding},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ir.PipelineSpec{Name: "p", Tasks: []ir.TaskSpec{tt.task}}
			assert.ElementsMatch(t, tt.want, codes(CheckBindings(p, comps)))
		})
	}

	t.Run("exit handler gets parent_run_id", func(t *testing.T) {
		p := ir.PipelineSpec{
			Name:        "p",
			Tasks:       []ir.TaskSpec{{ID: "a", Component: "create_list"}},
			ExitHandler: &ir.TaskSpec{ID: "notify", Component: "notify"},
		}
		assert.Empty(t, CheckBindings(p, comps))

		p.Tasks = append(p.Tasks, ir.TaskSpec{ID: "n", Component: "notify"})
		assert.Equal(t, []string{WarnUnboundParam}, codes(CheckBindings(p, comps)))
	})
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "f", Message: "m", Code: "E101"}
	assert.Equal(t, "[E101] f: m", e.Error())
	e.Line = 3
	assert.Equal(t, "[E101] line 3: f: m", e.Error())
	assert.False(t, e.IsWarning())
	assert.True(t, ValidationError{Code: WarnUnboundParam}.IsWarning())
}
