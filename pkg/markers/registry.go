package markers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Registry is the marker catalog. It resolves marker and argument types by
// name and serves the marker types' own metadata to the engine.
type Registry struct {
	markers map[string]*engine.MarkerType
	byName  map[string][]*engine.MarkerType
	args    map[string]*engine.ArgType
	mu      sync.RWMutex
}

// NewRegistry creates a registry with the built-in argument types and the
// framework marker set.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()

	for _, a := range builtinArgTypes() {
		r.args[a.Name] = a
	}
	for _, t := range builtinMarkers() {
		r.add(t)
	}

	return r
}

// NewEmptyRegistry creates a registry without any types.
func NewEmptyRegistry() *Registry {
	return &Registry{
		markers: make(map[string]*engine.MarkerType),
		byName:  make(map[string][]*engine.MarkerType),
		args:    make(map[string]*engine.ArgType),
	}
}

// Register adds a marker type. Registering the same qualified name twice fails.
func (r *Registry) Register(t *engine.MarkerType) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("marker type name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markers[t.QualifiedName()]; exists {
		return fmt.Errorf("marker type %s already registered", t.QualifiedName())
	}
	r.add(t)
	return nil
}

// RegisterDeclarations adds the marker types declared by an inspected module.
func (r *Registry) RegisterDeclarations(assembly string, decls []Declaration) error {
	for _, d := range decls {
		if err := r.Register(d.MarkerType(assembly)); err != nil {
			return fmt.Errorf("failed to register marker declared by %s: %w", assembly, err)
		}
	}
	return nil
}

// RegisterArgType adds or replaces an argument type.
func (r *Registry) RegisterArgType(a *engine.ArgType) error {
	if a == nil || a.Name == "" || a.Go == nil {
		return fmt.Errorf("argument type requires a name and a Go type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.args[a.Name] = a
	return nil
}

func (r *Registry) add(t *engine.MarkerType) {
	r.markers[t.QualifiedName()] = t
	r.byName[t.Name] = append(r.byName[t.Name], t)
}

// LookupMarker resolves "Name, Assembly" or a bare name that is unambiguous.
func (r *Registry) LookupMarker(qualifiedName string) (*engine.MarkerType, error) {
	name, assembly := engine.SplitQualifiedName(qualifiedName)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if assembly != "" {
		if t, ok := r.markers[name+", "+assembly]; ok {
			return t, nil
		}
		return nil, fmt.Errorf("%w: marker type %s", engine.ErrTypeLoad, qualifiedName)
	}

	candidates := r.byName[name]
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: marker type %s", engine.ErrTypeLoad, name)
	case 1:
		return candidates[0], nil
	}
	return nil, fmt.Errorf("%w: marker type %s is ambiguous across %d assemblies",
		engine.ErrTypeLoad, name, len(candidates))
}

// MustLookup is LookupMarker for built-in names known to exist.
func (r *Registry) MustLookup(name string) *engine.MarkerType {
	t, err := r.LookupMarker(name)
	if err != nil {
		panic(err)
	}
	return t
}

// ArgumentType resolves a scalar argument type.
func (r *Registry) ArgumentType(name string) (*engine.ArgType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.args[name]
	if !ok {
		return nil, fmt.Errorf("%w: argument type %s", engine.ErrTypeLoad, name)
	}
	return a, nil
}

// Markers returns every registered marker type sorted by qualified name.
func (r *Registry) Markers() []*engine.MarkerType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*engine.MarkerType, 0, len(r.markers))
	for _, t := range r.markers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QualifiedName() < out[j].QualifiedName()
	})
	return out
}

// BaseElement returns the element of a marker type's base marker type.
func (r *Registry) BaseElement(e engine.Element) (engine.Element, bool, error) {
	t, err := r.markerFor(e)
	if err != nil {
		return engine.Element{}, false, err
	}
	if t.Base == "" {
		return engine.Element{}, false, nil
	}

	base, err := r.LookupMarker(t.Base)
	if err != nil {
		return engine.Element{}, false, engine.NewUnavailableError("base marker type unresolved", err).
			WithElement(e.String()).
			WithCode(engine.ErrCodeNotFound)
	}
	return base.Element(), true, nil
}

// RawAttributes returns the records applied to a marker type itself.
func (r *Registry) RawAttributes(e engine.Element) ([]engine.AttributeRecord, error) {
	t, err := r.markerFor(e)
	if err != nil {
		return nil, err
	}
	return t.Declared, nil
}

// ModuleMode reports normal mode: marker types in the catalog are executable.
func (r *Registry) ModuleMode(engine.Element) (engine.Mode, error) {
	return engine.ModeNormal, nil
}

func (r *Registry) markerFor(e engine.Element) (*engine.MarkerType, error) {
	if e.Kind != engine.KindType {
		return nil, engine.NewUnavailableError("not a marker type", nil).
			WithElement(e.String()).
			WithCode(engine.ErrCodeNotFound)
	}

	r.mu.RLock()
	t, ok := r.markers[e.Type+", "+e.Assembly]
	r.mu.RUnlock()
	if !ok {
		return nil, engine.NewUnavailableError("marker type not registered", nil).
			WithElement(e.String()).
			WithCode(engine.ErrCodeNotFound)
	}
	return t, nil
}

var _ engine.Catalog = (*Registry)(nil)
