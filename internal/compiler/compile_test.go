package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/ir"
)

const fixtureCUE = `
component: create_list: {
	description: "Returns the list [1, 2, 3, 4]."
	returns: [...int]
}

component: append_to_list: {
	params: {
		digit:      int
		input_list: {artifact: "output"}
	}
	returns: [...int]
}

component: validate_custom_path: {
	params: {
		exp_path:   string
		input_list: {artifact: "output"}
	}
	returns: bool
}

pipeline: "pipeline-with-custom-path-artifact": {
	tasks: {
		"create-list": {
			component: "create_list"
			outputs: Output: custom_path: "/etc/test/file/path"
		}
		"validate-custom-path": {
			component: "validate_custom_path"
			args: {
				path:       "/etc/test/file/path"
				input_list: {task: "create-list", output: "Output"}
			}
		}
	}
}
`

func compileString(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileComponent(t *testing.T) {
	v := compileString(t, fixtureCUE)

	tests := []struct {
		path string
		want ir.ComponentSpec
	}{
		{
			path: "component.create_list",
			want: ir.ComponentSpec{
				Name:        "create_list",
				Description: "Returns the list [1, 2, 3, 4].",
				Params:      []ir.ParamSpec{},
				Returns:     ir.TypeList,
			},
		},
		{
			path: "component.append_to_list",
			want: ir.ComponentSpec{
				Name: "append_to_list",
				Params: []ir.ParamSpec{
					{Name: "digit", Type: ir.TypeInt, Kind: ir.KindParameter},
					{Name: "input_list", Type: ir.TypeArtifact, Kind: ir.KindOutput},
				},
				Returns: ir.TypeList,
			},
		},
		{
			path: "component.validate_custom_path",
			want: ir.ComponentSpec{
				Name: "validate_custom_path",
				Params: []ir.ParamSpec{
					{Name: "exp_path", Type: ir.TypeString, Kind: ir.KindParameter},
					{Name: "input_list", Type: ir.TypeArtifact, Kind: ir.KindOutput},
				},
				Returns: ir.TypeBool,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := CompileComponent(v.LookupPath(cue.ParsePath(tt.path)))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("CompileComponent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompilePipeline(t *testing.T) {
	v := compileString(t, fixtureCUE)

	got, err := CompilePipeline(v.LookupPath(cue.ParsePath(`pipeline."pipeline-with-custom-path-artifact"`)))
	require.NoError(t, err)

	want := ir.PipelineSpec{
		Name: "pipeline-with-custom-path-artifact",
		Tasks: []ir.TaskSpec{
			{
				ID:          "create-list",
				Component:   "create_list",
				OutputPaths: map[string]string{"Output": "/etc/test/file/path"},
			},
			{
				ID:        "validate-custom-path",
				Component: "validate_custom_path",
				Args: map[string]ir.ArgSpec{
					"path":       ir.Literal(ir.String("/etc/test/file/path")),
					"input_list": ir.Ref("create-list", "Output"),
				},
			},
		},
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("CompilePipeline() mismatch (-want +got):\n%s", diff)
	}
}

func TestCompilePipelineLiterals(t *testing.T) {
	v := compileString(t, `
pipeline: p: {
	tasks: t: {
		component: "c"
		args: {
			n:    5
			b:    true
			l:    [1, 2]
			s:    {k: "v"}
			ref:  {task: "up"}
		}
	}
	exit_handler: {component: "clean_up"}
}`)

	got, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.p")))
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)

	args := got.Tasks[0].Args
	assert.Equal(t, ir.Int(5), args["n"].Value)
	assert.Equal(t, ir.Bool(true), args["b"].Value)
	assert.True(t, ir.Equal(ir.Ints(1, 2), args["l"].Value))
	assert.True(t, ir.Equal(ir.Struct{"k": ir.String("v")}, args["s"].Value))
	assert.Equal(t, ir.Ref("up", ir.DefaultOutput), args["ref"], "output defaults to Output")

	require.NotNil(t, got.ExitHandler)
	assert.Equal(t, "clean-up", got.ExitHandler.ID)
	assert.Equal(t, "clean_up", got.ExitHandler.Component)
}

func TestCompileRejectsFloats(t *testing.T) {
	v := compileString(t, `
component: c: params: x: float
pipeline: p: tasks: t: {component: "c", args: x: 1.5}
`)

	_, err := CompileComponent(v.LookupPath(cue.ParsePath("component.c")))
	var compileErr *CompileError
	require.True(t, errors.As(err, &compileErr))
	assert.Equal(t, "type", compileErr.Field)

	_, err = CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.p")))
	require.True(t, errors.As(err, &compileErr))
	assert.Contains(t, compileErr.Message, "float")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		path  string
		field string
	}{
		{
			name:  "bad artifact kind",
			src:   `component: c: params: a: {artifact: "sideways"}`,
			path:  "component.c",
			field: "params.a.artifact",
		},
		{
			name:  "missing tasks",
			src:   `pipeline: p: {description: "x"}`,
			path:  "pipeline.p",
			field: "tasks",
		},
		{
			name:  "missing component",
			src:   `pipeline: p: tasks: t: {args: x: 1}`,
			path:  "pipeline.p",
			field: "tasks.t.component",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compileString(t, tt.src)
			var err error
			if tt.path == "component.c" {
				_, err = CompileComponent(v.LookupPath(cue.ParsePath(tt.path)))
			} else {
				_, err = CompilePipeline(v.LookupPath(cue.ParsePath(tt.path)))
			}
			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr), "got %v", err)
			assert.Equal(t, tt.field, compileErr.Field)
		})
	}
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "tasks", Message: "at least one task is required"}
	assert.Equal(t, "tasks: at least one task is required", err.Error())
}

func TestUnquoteLabel(t *testing.T) {
	assert.Equal(t, "create-list", unquoteLabel(`"create-list"`))
	assert.Equal(t, "plain", unquoteLabel("plain"))
}
