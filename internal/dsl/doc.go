// Package dsl is the Go-side authoring surface for pipekit.
//
// Components are declared by explicit registration: a plain Go function is
// wrapped with its metadata (name, typed parameters, typed return) and added
// to a Registry. Pipelines are built with NewPipeline, which records task
// invocations and the artifact references between them, then compiles to an
// ir.PipelineSpec.
//
//	reg := dsl.NewRegistry()
//	reg.MustRegister(dsl.Component{
//	    Name:    "create_list",
//	    Returns: ir.TypeList,
//	    Fn: func(ctx context.Context, in *dsl.Inputs) (ir.Value, error) {
//	        return ir.Ints(1, 2, 3, 4), nil
//	    },
//	})
//
//	p := dsl.NewPipeline("example")
//	first := p.Task("create_list")
//	first.Output().SetCustomPath("/data/list")
//	p.Task("consume", dsl.Kw("input_list", first.Output()))
//	spec, err := p.Build()
//
// At run time a component receives an Inputs value holding its resolved
// parameters and Artifact handles.
package dsl
