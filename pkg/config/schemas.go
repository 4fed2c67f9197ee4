package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/tessera-run/tessera/pkg/metadata"
)

// ManifestSchema is the name of the built-in manifest schema.
const ManifestSchema = "manifest"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(ManifestSchema, builtinManifestSchema, "#Manifest"); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles schema and registers the definition it declares
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, schema, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ValidationErrors(convertCUEErrors(err))
	}

	return nil
}

// ValidateManifest validates a decoded manifest against the manifest schema.
func (sr *SchemaRegistry) ValidateManifest(ctx context.Context, m *metadata.Manifest) error {
	return sr.ValidateAgainstSchema(ctx, ManifestSchema, m)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinManifestSchema = `
// Typed argument value. Arrays carry their items in elements.
#Typed: {
	type:      string & !=""
	value?:    _
	elements?: [...#Typed]
}

// Raw marker application.
#Record: {
	// Assembly-qualified marker type name
	type:   string & =~"^[^,]+(,[^,]+)*$"
	args?:  [...#Typed]
	named?: [...{
		name:  string & !=""
		value: #Typed
	}]
}

#Method: {
	name:        string & !=""
	overrides?:  string
	attributes?: [...#Record]
}

#Type: {
	name:        string & !=""
	base?:       string
	abstract?:   bool
	attributes?: [...#Record]
	methods?:    [...#Method]
}

// Marker type declared by an inspected module.
#Declaration: {
	name:          string & !=""
	base?:         string
	constructors?: [...[...string]]
	properties?:   {[string]: string}
	attributes?:   [...#Record]
}

#Assembly: {
	name:        string & !=""
	mode?:       "normal" | "inspection-only"
	unreadable?: bool
	attributes?: [...#Record]
	markers?:    [...#Declaration]
	types?:      [...#Type]
}

#Manifest: {
	assemblies: [...#Assembly]
}
`
