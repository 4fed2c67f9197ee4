package config

import (
	"context"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/tessera-run/tessera/pkg/metadata"
)

// CUELoader reads manifests written in CUE. Sources are unified with the
// built-in #Manifest schema before decoding, so schema violations are
// reported with CUE positions.
type CUELoader struct {
	ctx     *cue.Context
	schemas *SchemaRegistry
}

// NewCUELoader creates a new CUE manifest loader.
func NewCUELoader() *CUELoader {
	ctx := cuecontext.New()
	return &CUELoader{
		ctx:     ctx,
		schemas: newSchemaRegistry(ctx),
	}
}

// Load reads a .cue file or a directory holding one CUE package.
func (cl *CUELoader) Load(_ context.Context, path string) (*metadata.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", path, err)
	}

	var val cue.Value
	if info.IsDir() {
		val, err = cl.loadDirectory(path)
	} else {
		val, err = cl.loadFile(path)
	}
	if err != nil {
		return nil, err
	}

	return cl.decode(val)
}

// LoadInline reads a manifest from CUE source text.
func (cl *CUELoader) LoadInline(_ context.Context, content string) (*metadata.Manifest, error) {
	val := cl.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}
	return cl.decode(val)
}

// loadDirectory loads a directory as a CUE package.
func (cl *CUELoader) loadDirectory(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, ValidationErrors{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, ValidationErrors(convertCUEErrors(inst.Err))
	}

	val := cl.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, ValidationErrors(convertCUEErrors(err))
	}
	return val, nil
}

// loadFile loads a single CUE file.
func (cl *CUELoader) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read file: %w", err)
	}

	val := cl.ctx.CompileBytes(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, ValidationErrors(convertCUEErrors(err))
	}
	return val, nil
}

// decode unifies val with the manifest schema and decodes it.
func (cl *CUELoader) decode(val cue.Value) (*metadata.Manifest, error) {
	schema, _ := cl.schemas.GetSchema(ManifestSchema)

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, ValidationErrors(convertCUEErrors(err))
	}

	var m metadata.Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Path:     pathString(e.Path()),
			Message:  errors.Details(e, nil),
			Severity: "error",
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error(), Severity: "error"})
	}

	return validationErrors
}

func pathString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 && (len(p) == 0 || p[0] != '[') {
			out += "."
		}
		out += p
	}
	return out
}
