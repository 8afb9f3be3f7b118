package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pipekit/internal/ir"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes. Compile errors inside a block keep the field they
// were reported on and are coded with LoadCodeCompile.
const (
	LoadCodeGeneric     = "E001" // nothing usable found
	LoadCodeScanError   = "E002" // directory scan error
	LoadCodeNoFiles     = "E003" // no CUE files found
	LoadCodeLoadFailed  = "E004" // CUE load failed
	LoadCodeNotFound    = "E005" // path not found
	LoadCodeBuildFailed = "E006" // CUE build failed
	LoadCodeCompile     = "E008" // a component or pipeline block did not compile
)

// LoadResult holds everything compiled from a specs directory, in
// declaration order.
type LoadResult struct {
	Components []ir.ComponentSpec
	Pipelines  []ir.PipelineSpec
	FileCount  int
}

// Pipeline returns the pipeline with the given name.
func (r *LoadResult) Pipeline(name string) (ir.PipelineSpec, bool) {
	i := slices.IndexFunc(r.Pipelines, func(p ir.PipelineSpec) bool { return p.Name == name })
	if i < 0 {
		return ir.PipelineSpec{}, false
	}
	return r.Pipelines[i], true
}

// PipelineNames lists the loaded pipelines in declaration order.
func (r *LoadResult) PipelineNames() []string {
	names := make([]string, len(r.Pipelines))
	for i, p := range r.Pipelines {
		names[i] = p.Name
	}
	return names
}

// LoadError is an error that occurred while loading a specs directory.
type LoadError struct {
	Code    string
	Block   string // e.g. component.create_list; empty for directory-level errors
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Block != "" {
		msg = e.Block + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// LoadSpecs loads the CUE package in dir and compiles its component and
// pipeline blocks.
// If mode is LoadModeFailFast, returns on the first error.
// If mode is LoadModeCollectAll, compiles every block and returns all errors.
func LoadSpecs(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, []error{&LoadError{Code: LoadCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: LoadCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: LoadCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: LoadCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: LoadCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: LoadCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: LoadCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: LoadCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error

	stop := each(value, "component", mode, &errs, func(v cue.Value) error {
		spec, err := CompileComponent(v)
		if err != nil {
			return err
		}
		result.Components = append(result.Components, *spec)
		return nil
	})
	if stop {
		return result, errs
	}

	stop = each(value, "pipeline", mode, &errs, func(v cue.Value) error {
		spec, err := CompilePipeline(v)
		if err != nil {
			return err
		}
		result.Pipelines = append(result.Pipelines, *spec)
		return nil
	})
	if stop {
		return result, errs
	}

	if len(result.Components) == 0 && len(result.Pipelines) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: LoadCodeGeneric, Message: "no components or pipelines found in specs"})
	}
	return result, errs
}

// each compiles every field of the top-level block named kind, appending
// failures to errs. It reports whether loading should stop.
func each(root cue.Value, kind string, mode LoadMode, errs *[]error, compile func(cue.Value) error) bool {
	block := root.LookupPath(cue.ParsePath(kind))
	if !block.Exists() {
		return false
	}

	iter, err := block.Fields()
	if err != nil {
		*errs = append(*errs, &LoadError{Code: LoadCodeGeneric, Block: kind, Message: fmt.Sprintf("iterating fields: %v", err)})
		return mode == LoadModeFailFast
	}
	for iter.Next() {
		if err := compile(iter.Value()); err != nil {
			*errs = append(*errs, toLoadError(err, kind+"."+unquoteLabel(iter.Selector().String())))
			if mode == LoadModeFailFast {
				return true
			}
		}
	}
	return false
}

// toLoadError keeps the position of a CompileError.
func toLoadError(err error, block string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    LoadCodeCompile,
			Block:   block,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: LoadCodeCompile, Block: block, Message: err.Error()}
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
