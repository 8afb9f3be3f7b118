package fixture

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
)

func TestCreateList(t *testing.T) {
	for i := 0; i < 3; i++ {
		got, err := CreateList(context.Background(), dsl.NewInputs("run", "create-list"))
		require.NoError(t, err)
		assert.Equal(t, ir.Ints(1, 2, 3, 4), got)
	}
}

func TestAppendToList(t *testing.T) {
	tests := []struct {
		name  string
		list  ir.List
		digit int64
	}{
		{"empty", ir.List{}, 7},
		{"created list", ir.Ints(1, 2, 3, 4), 5},
		{"negative", ir.Ints(9), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append(append(ir.List{}, tt.list...), ir.Int(tt.digit))

			art := dsl.NewArtifact("/tmp/pipekit/run/t/Output", false, tt.list)
			in := dsl.NewInputs("run", "append-to-list")
			in.SetParam("digit", ir.Int(tt.digit))
			in.SetArtifact("input_list", art)

			got, err := AppendToList(context.Background(), in)
			require.NoError(t, err)

			assert.Equal(t, want, got, "returned value")
			assert.Equal(t, want, art.Value(), "artifact contents")
			assert.True(t, art.Modified())
		})
	}
}

func TestAppendToList_NotAList(t *testing.T) {
	art := dsl.NewArtifact("/a", false, ir.String("nope"))
	in := dsl.NewInputs("run", "append-to-list")
	in.SetParam("digit", ir.Int(1))
	in.SetArtifact("input_list", art)

	_, err := AppendToList(context.Background(), in)
	var typeErr *dsl.TypeError
	require.True(t, errors.As(err, &typeErr), "got %v", err)
	assert.Equal(t, "string", typeErr.Got)
}

func validateInputs(art *dsl.Artifact, expPath string) *dsl.Inputs {
	in := dsl.NewInputs("run", "validate-custom-path")
	in.SetParam("exp_path", ir.String(expPath))
	in.SetArtifact("input_list", art)
	return in
}

func TestValidateCustomPath_SameString(t *testing.T) {
	art := dsl.NewArtifact(strings.Clone(CustomPath), true, ir.Ints(1, 2, 3, 4))

	got, err := ValidateCustomPath(context.Background(), validateInputs(art, art.Path()))
	require.NoError(t, err)
	assert.Nil(t, got, "declared bool, returns nothing")
}

// The check compares identity, so an equal path held in separate memory
// fails. This documents the behavior rather than endorsing it.
func TestValidateCustomPath_EqualButDistinctStringRaises(t *testing.T) {
	art := dsl.NewArtifact(strings.Clone(CustomPath), true, ir.Ints(1, 2, 3, 4))
	expected := strings.Clone(art.Path())
	require.Equal(t, art.Path(), expected)

	_, err := ValidateCustomPath(context.Background(), validateInputs(art, expected))

	var valueErr *ValueError
	require.True(t, errors.As(err, &valueErr), "got %v", err)
	assert.Equal(t, "File uri is /etc/test/file/path but should be /etc/test/file/path.", err.Error())
}

func TestValidateCustomPath_DifferentValueRaises(t *testing.T) {
	art := dsl.NewArtifact(CustomPath, true, ir.Ints(1, 2, 3, 4))

	_, err := ValidateCustomPath(context.Background(), validateInputs(art, "/somewhere/else"))

	var valueErr *ValueError
	require.True(t, errors.As(err, &valueErr))
	assert.Equal(t, CustomPath, valueErr.Actual)
	assert.Equal(t, "/somewhere/else", valueErr.Expected)
}

func TestValidateCustomPath_MissingArguments(t *testing.T) {
	_, err := ValidateCustomPath(context.Background(), dsl.NewInputs("run", "v"))
	assert.ErrorContains(t, err, `"exp_path" is not bound`)

	in := dsl.NewInputs("run", "v")
	in.SetParam("exp_path", ir.String("/x"))
	_, err = ValidateCustomPath(context.Background(), in)
	assert.ErrorContains(t, err, `"input_list" is not bound`)
}

func TestSameString(t *testing.T) {
	s := "/etc/test/file/path"
	assert.True(t, sameString(s, s))
	assert.False(t, sameString(s, strings.Clone(s)))
	assert.False(t, sameString(s, s[:4]), "same start, different length")
}

func TestRegister(t *testing.T) {
	reg := dsl.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Equal(t, []string{AppendToListName, CreateListName, ValidateCustomPathName}, reg.Names())

	err := Register(reg)
	assert.True(t, errors.Is(err, dsl.ErrComponentAlreadyRegistered))
}
