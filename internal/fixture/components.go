package fixture

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
)

// Component names.
const (
	CreateListName         = "create_list"
	AppendToListName       = "append_to_list"
	ValidateCustomPathName = "validate_custom_path"
)

// ValueError is raised by validate_custom_path when the artifact path does
// not pass its identity check.
type ValueError struct {
	Actual   string
	Expected string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("File uri is %s but should be %s.", e.Actual, e.Expected)
}

// CreateList returns the list [1, 2, 3, 4].
func CreateList(ctx context.Context, in *dsl.Inputs) (ir.Value, error) {
	return ir.Ints(1, 2, 3, 4), nil
}

// AppendToList appends digit to the list held by input_list.
//
// It both mutates the artifact in place and returns the resulting list.
// Callers observe the append through the handle and through the task's
// Output; both are part of the contract.
func AppendToList(ctx context.Context, in *dsl.Inputs) (ir.Value, error) {
	digit, err := in.Int("digit")
	if err != nil {
		return nil, err
	}
	art, err := in.Artifact("input_list")
	if err != nil {
		return nil, err
	}
	list, err := art.Append(ir.Int(digit))
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ValidateCustomPath checks that input_list was stored at exp_path.
//
// The comparison is by identity: the check passes only when exp_path and
// the artifact's path are the same string in memory. Declared to return
// bool, it returns nothing on success.
func ValidateCustomPath(ctx context.Context, in *dsl.Inputs) (ir.Value, error) {
	expPath, err := in.String("exp_path")
	if err != nil {
		return nil, err
	}
	art, err := in.Artifact("input_list")
	if err != nil {
		return nil, err
	}
	if !sameString(art.Path(), expPath) {
		return nil, &ValueError{Actual: art.Path(), Expected: expPath}
	}
	return nil, nil
}

// sameString reports whether a and b share backing memory and length.
func sameString(a, b string) bool {
	return len(a) == len(b) && unsafe.StringData(a) == unsafe.StringData(b)
}

// Components returns the fixture's component declarations.
func Components() []dsl.Component {
	return []dsl.Component{
		{
			Name:        CreateListName,
			Description: "Returns the list [1, 2, 3, 4].",
			Returns:     ir.TypeList,
			Fn:          CreateList,
		},
		{
			Name:        AppendToListName,
			Description: "Appends digit to input_list in place and returns the list.",
			Params: []ir.ParamSpec{
				dsl.Param("digit", ir.TypeInt),
				dsl.OutputArtifact("input_list"),
			},
			Returns: ir.TypeList,
			Fn:      AppendToList,
		},
		{
			Name:        ValidateCustomPathName,
			Description: "Checks that input_list is stored at exp_path.",
			Params: []ir.ParamSpec{
				dsl.Param("exp_path", ir.TypeString),
				dsl.OutputArtifact("input_list"),
			},
			Returns: ir.TypeBool,
			Fn:      ValidateCustomPath,
		},
	}
}

// Register adds the fixture components to reg.
func Register(reg *dsl.Registry) error {
	for _, c := range Components() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Name, err)
		}
	}
	return nil
}
