package fixture

import (
	"github.com/roach88/pipekit/internal/dsl"
	"github.com/roach88/pipekit/internal/ir"
)

// PipelineName is the name of the custom path pipeline.
const PipelineName = "pipeline-with-custom-path-artifact"

// CustomPath is where the pipeline stores create-list's output.
const CustomPath = "/etc/test/file/path"

// Pipeline builds pipeline_with_custom_path_artifact.
//
// The second task passes the expected path as path=, which matches no
// parameter of validate_custom_path.
func Pipeline() (ir.PipelineSpec, error) {
	p := dsl.NewPipeline(PipelineName).
		Describe("Overrides an output artifact's path and checks the consumer sees it.")

	createList := p.Task(CreateListName)
	createList.Output().SetCustomPath(CustomPath)

	p.Task(ValidateCustomPathName,
		dsl.Kw("path", CustomPath),
		dsl.Kw("input_list", createList.Output()),
	)

	return p.Build()
}
