package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/compiler"
	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
)

func loadSpecs(t *testing.T) cue.Value {
	t.Helper()
	src, err := os.ReadFile(filepath.Join("testdata", "specs", "fixture.cue"))
	require.NoError(t, err)
	v := cuecontext.New().CompileBytes(src)
	require.NoError(t, v.Err())
	return v
}

func TestPipeline_Shape(t *testing.T) {
	p, err := Pipeline()
	require.NoError(t, err)

	assert.Equal(t, PipelineName, p.Name)
	require.Len(t, p.Tasks, 2)

	create, validate := p.Tasks[0], p.Tasks[1]
	assert.Equal(t, "create-list", create.ID)
	assert.Equal(t, map[string]string{ir.DefaultOutput: CustomPath}, create.OutputPaths)

	assert.Equal(t, "validate-custom-path", validate.ID)
	assert.Equal(t, []string{"input_list", "path"}, validate.ArgNames(), "path= is kept as written")
	assert.Equal(t, ir.Ref("create-list", ir.DefaultOutput), validate.Args["input_list"])
	assert.Equal(t, []string{"create-list"}, validate.Dependencies())
}

func TestPipeline_MatchesCUEDeclaration(t *testing.T) {
	built, err := Pipeline()
	require.NoError(t, err)

	v := loadSpecs(t)
	compiled, err := compiler.CompilePipeline(v.LookupPath(cue.MakePath(cue.Str("pipeline"), cue.Str(PipelineName))))
	require.NoError(t, err)

	if diff := cmp.Diff(*compiled, built, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("builder and CUE pipelines differ (-cue +builder):\n%s", diff)
	}
}

func TestComponents_MatchCUEDeclaration(t *testing.T) {
	v := loadSpecs(t)

	for _, c := range Components() {
		t.Run(c.Name, func(t *testing.T) {
			compiled, err := compiler.CompileComponent(v.LookupPath(cue.MakePath(cue.Str("component"), cue.Str(c.Name))))
			require.NoError(t, err)
			if diff := cmp.Diff(*compiled, c.Spec(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("component spec mismatch (-cue +go):\n%s", diff)
			}
		})
	}
}

func TestPipeline_KeywordMismatchDiagnostics(t *testing.T) {
	p, err := Pipeline()
	require.NoError(t, err)

	reg := dsl.NewRegistry()
	require.NoError(t, Register(reg))

	diags := compiler.Validate(reg.Specs(), []ir.PipelineSpec{p})
	require.Len(t, diags, 2)

	assert.Equal(t, compiler.WarnUnknownArgument, diags[0].Code)
	assert.Contains(t, diags[0].Field, "validate-custom-path.args.path")
	assert.Equal(t, compiler.WarnUnboundParam, diags[1].Code)
	assert.Contains(t, diags[1].Message, "exp_path")

	assert.Empty(t, compiler.Failing(diags, false))
	assert.Len(t, compiler.Failing(diags, true), 2)
}
