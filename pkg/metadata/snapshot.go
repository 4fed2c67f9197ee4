package metadata

import (
	"fmt"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
)

// Snapshot is an immutable, indexed view over a manifest. It implements
// engine.Provider and is safe for concurrent use.
type Snapshot struct {
	assemblies []*assemblyInfo
	byName     map[string]*assemblyInfo
}

type assemblyInfo struct {
	def   Assembly
	mode  engine.Mode
	types []*typeInfo
	index map[string]*typeInfo
}

type typeInfo struct {
	def     Type
	methods map[string]*Method
}

// TypeInfo is an enumerated type.
type TypeInfo struct {
	Element  engine.Element
	Abstract bool
}

// NewSnapshot indexes m. Duplicate assemblies, types or methods and unknown
// modes are rejected.
func NewSnapshot(m *Manifest) (*Snapshot, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}

	s := &Snapshot{byName: make(map[string]*assemblyInfo, len(m.Assemblies))}

	for _, asm := range m.Assemblies {
		if _, exists := s.byName[asm.Name]; exists {
			return nil, fmt.Errorf("duplicate assembly %s", asm.Name)
		}
		mode, ok := ParseMode(asm.Mode)
		if !ok {
			return nil, fmt.Errorf("assembly %s: unknown mode %q", asm.Name, asm.Mode)
		}

		info := &assemblyInfo{
			def:   asm,
			mode:  mode,
			index: make(map[string]*typeInfo, len(asm.Types)),
		}
		for i := range asm.Types {
			def := asm.Types[i]
			if _, exists := info.index[def.Name]; exists {
				return nil, fmt.Errorf("assembly %s: duplicate type %s", asm.Name, def.Name)
			}
			ti := &typeInfo{def: def, methods: make(map[string]*Method, len(def.Methods))}
			for j := range def.Methods {
				method := &def.Methods[j]
				if _, exists := ti.methods[method.Name]; exists {
					return nil, fmt.Errorf("type %s: duplicate method %s", def.Name, method.Name)
				}
				ti.methods[method.Name] = method
			}
			info.types = append(info.types, ti)
			info.index[def.Name] = ti
		}

		s.assemblies = append(s.assemblies, info)
		s.byName[asm.Name] = info
	}

	return s, nil
}

// Assemblies returns the assembly elements in manifest order.
func (s *Snapshot) Assemblies() []engine.Element {
	out := make([]engine.Element, 0, len(s.assemblies))
	for _, asm := range s.assemblies {
		out = append(out, engine.AssemblyElement(asm.def.Name))
	}
	return out
}

// Types returns the types declared in assembly, in manifest order.
func (s *Snapshot) Types(assembly string) ([]TypeInfo, error) {
	asm, err := s.assembly(assembly)
	if err != nil {
		return nil, err
	}

	out := make([]TypeInfo, 0, len(asm.types))
	for _, t := range asm.types {
		out = append(out, TypeInfo{
			Element:  engine.TypeElement(assembly, t.def.Name),
			Abstract: t.def.Abstract,
		})
	}
	return out, nil
}

// Methods returns the methods declared directly on a type, in manifest order.
func (s *Snapshot) Methods(typeElement engine.Element) ([]engine.Element, error) {
	_, t, err := s.typeOf(typeElement)
	if err != nil {
		return nil, err
	}

	out := make([]engine.Element, 0, len(t.def.Methods))
	for _, m := range t.def.Methods {
		out = append(out, engine.MethodElement(typeElement.Assembly, t.def.Name, m.Name))
	}
	return out, nil
}

// VisibleMethods returns the methods of a type including those inherited from
// its base types, most-derived first. Each element names the declaring type; a
// base method is hidden by a method of the same name on a more-derived type.
func (s *Snapshot) VisibleMethods(typeElement engine.Element) ([]engine.Element, error) {
	levels, err := engine.Ancestry(s, typeElement, true)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []engine.Element
	for _, level := range levels {
		methods, err := s.Methods(level)
		if err != nil {
			return nil, err
		}
		for _, m := range methods {
			if seen[m.Method] {
				continue
			}
			seen[m.Method] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Declarations returns the marker types declared by every module.
func (s *Snapshot) Declarations() map[string][]markers.Declaration {
	out := make(map[string][]markers.Declaration)
	for _, asm := range s.assemblies {
		if len(asm.def.Markers) > 0 {
			out[asm.def.Name] = asm.def.Markers
		}
	}
	return out
}

// Contains reports whether e is declared in the snapshot.
func (s *Snapshot) Contains(e engine.Element) bool {
	switch e.Kind {
	case engine.KindAssembly:
		_, ok := s.byName[e.Assembly]
		return ok
	case engine.KindType:
		_, _, err := s.typeOf(e)
		return err == nil
	case engine.KindMethod:
		_, _, err := s.methodOf(e)
		return err == nil
	}
	return false
}

// BaseElement implements engine.Provider.
func (s *Snapshot) BaseElement(e engine.Element) (engine.Element, bool, error) {
	switch e.Kind {
	case engine.KindType:
		_, t, err := s.typeOf(e)
		if err != nil {
			return engine.Element{}, false, err
		}
		if t.def.Base == "" || t.def.Base == engine.RootTypeName {
			return engine.TypeElement("", engine.RootTypeName), true, nil
		}
		name, assembly := qualify(t.def.Base, e.Assembly)
		return engine.TypeElement(assembly, name), true, nil

	case engine.KindMethod:
		_, m, err := s.methodOf(e)
		if err != nil {
			return engine.Element{}, false, err
		}
		if m.Overrides == "" {
			return engine.Element{}, false, nil
		}
		declaring, assembly := qualify(m.Overrides, e.Assembly)
		return engine.MethodElement(assembly, declaring, e.Method), true, nil

	case engine.KindAssembly:
		if _, err := s.assembly(e.Assembly); err != nil {
			return engine.Element{}, false, err
		}
	}
	return engine.Element{}, false, nil
}

// RawAttributes implements engine.Provider.
func (s *Snapshot) RawAttributes(e engine.Element) ([]engine.AttributeRecord, error) {
	switch e.Kind {
	case engine.KindAssembly:
		asm, err := s.assembly(e.Assembly)
		if err != nil {
			return nil, err
		}
		return asm.def.Attributes, nil

	case engine.KindType:
		_, t, err := s.typeOf(e)
		if err != nil {
			return nil, err
		}
		return t.def.Attributes, nil

	case engine.KindMethod:
		_, m, err := s.methodOf(e)
		if err != nil {
			return nil, err
		}
		return m.Attributes, nil
	}
	return nil, unavailable(e, "unknown element kind", engine.ErrCodeNotFound)
}

// ModuleMode implements engine.Provider.
func (s *Snapshot) ModuleMode(e engine.Element) (engine.Mode, error) {
	asm, err := s.assembly(e.Assembly)
	if err != nil {
		return engine.ModeNormal, err
	}
	return asm.mode, nil
}

func (s *Snapshot) assembly(name string) (*assemblyInfo, error) {
	asm, ok := s.byName[name]
	if !ok {
		return nil, unavailable(engine.AssemblyElement(name), "assembly not loaded", engine.ErrCodeNotFound)
	}
	if asm.def.Unreadable {
		return nil, unavailable(engine.AssemblyElement(name), "module image cannot be read", engine.ErrCodeBadImageFormat)
	}
	return asm, nil
}

func (s *Snapshot) typeOf(e engine.Element) (*assemblyInfo, *typeInfo, error) {
	asm, err := s.assembly(e.Assembly)
	if err != nil {
		return nil, nil, err
	}
	t, ok := asm.index[e.Type]
	if !ok {
		return nil, nil, unavailable(e, "type not found", engine.ErrCodeNotFound)
	}
	return asm, t, nil
}

func (s *Snapshot) methodOf(e engine.Element) (*typeInfo, *Method, error) {
	_, t, err := s.typeOf(engine.TypeElement(e.Assembly, e.Type))
	if err != nil {
		return nil, nil, err
	}
	m, ok := t.methods[e.Method]
	if !ok {
		return nil, nil, unavailable(e, "method not found", engine.ErrCodeNotFound)
	}
	return t, m, nil
}

// qualify splits "Name[, Assembly]", defaulting the assembly to owner.
func qualify(ref, owner string) (name, assembly string) {
	name, assembly = engine.SplitQualifiedName(ref)
	if assembly == "" {
		assembly = owner
	}
	return name, assembly
}

func unavailable(e engine.Element, message, code string) error {
	return engine.NewUnavailableError(message, nil).
		WithElement(e.String()).
		WithCode(code)
}

var _ engine.Provider = (*Snapshot)(nil)
