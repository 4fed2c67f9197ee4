package engine

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind discriminates the program elements the engine can inspect.
type Kind int

const (
	// KindAssembly is a whole module.
	KindAssembly Kind = iota + 1

	// KindType is a type declared in a module.
	KindType

	// KindMethod is a method declared on a type.
	KindMethod
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAssembly:
		return "assembly"
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	}
	return "unknown"
}

// Mode describes how the module owning an element was loaded.
type Mode int

const (
	// ModeNormal means the module is backed by an executable representation.
	ModeNormal Mode = iota

	// ModeInspectionOnly means no code owned by the module may run; markers are
	// rebuilt from declarative metadata alone.
	ModeInspectionOnly
)

// String returns the manifest spelling of the mode.
func (m Mode) String() string {
	if m == ModeInspectionOnly {
		return "inspection-only"
	}
	return "normal"
}

// RootTypeName is the universal root of every type hierarchy. It terminates
// type ancestry walks and never contributes markers.
const RootTypeName = "System.Object"

// Element identifies an assembly, a type or a method. The zero value is the
// absent element.
type Element struct {
	Kind     Kind   `json:"kind"`
	Assembly string `json:"assembly"`

	// Type is the full type name; for methods it is the declaring type.
	Type string `json:"type,omitempty"`

	// Method is the method name. Empty unless Kind is KindMethod.
	Method string `json:"method,omitempty"`
}

// AssemblyElement returns the element for a whole module.
func AssemblyElement(name string) Element {
	return Element{Kind: KindAssembly, Assembly: name}
}

// TypeElement returns the element for a type declared in assembly.
func TypeElement(assembly, fullName string) Element {
	return Element{Kind: KindType, Assembly: assembly, Type: fullName}
}

// MethodElement returns the element for a method declared on declaringType.
func MethodElement(assembly, declaringType, name string) Element {
	return Element{Kind: KindMethod, Assembly: assembly, Type: declaringType, Method: name}
}

// IsZero reports whether e is the absent element.
func (e Element) IsZero() bool {
	return e == Element{}
}

// FullName returns the element's name without the assembly.
func (e Element) FullName() string {
	switch e.Kind {
	case KindAssembly:
		return e.Assembly
	case KindMethod:
		return e.Type + "." + e.Method
	}
	return e.Type
}

// String returns a stable identity for logging and cache keys.
func (e Element) String() string {
	if e.IsZero() {
		return "<none>"
	}
	if e.Kind == KindAssembly {
		return "[" + e.Assembly + "]"
	}
	return "[" + e.Assembly + "]" + e.FullName()
}

// TypedValue is one raw argument value together with its declared type name.
// Array arguments carry their items in Elements.
type TypedValue struct {
	Type     string       `json:"type" yaml:"type" validate:"required"`
	Value    interface{}  `json:"value,omitempty" yaml:"value,omitempty"`
	Elements []TypedValue `json:"elements,omitempty" yaml:"elements,omitempty" validate:"dive"`
}

// IsArray reports whether the value carries a sequence of typed sub-values.
func (v TypedValue) IsArray() bool {
	return v.Elements != nil
}

// NamedArgument assigns a value to a settable property after construction.
type NamedArgument struct {
	Name  string     `json:"name" yaml:"name" validate:"required"`
	Value TypedValue `json:"value" yaml:"value"`
}

// AttributeRecord is the raw, unexecuted description of one marker application.
type AttributeRecord struct {
	// MarkerType is the assembly-qualified name of the marker type.
	MarkerType string `json:"type" yaml:"type" validate:"required"`

	// Positional holds the constructor arguments in declaration order.
	Positional []TypedValue `json:"args,omitempty" yaml:"args,omitempty" validate:"dive"`

	// Named holds property assignments.
	Named []NamedArgument `json:"named,omitempty" yaml:"named,omitempty" validate:"dive"`
}

// SplitQualifiedName splits "Full.Name, Assembly" into its parts. Any trailing
// version or culture segments are ignored.
func SplitQualifiedName(qualified string) (name, assembly string) {
	parts := strings.Split(qualified, ",")
	name = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		assembly = strings.TrimSpace(parts[1])
	}
	return name, assembly
}

// Constructor is one entry of a marker type's constructor table.
type Constructor struct {
	// Params lists the declared argument type names.
	Params []string

	// New builds a marker value from arguments already converted to the
	// parameter types.
	New func(args []interface{}) (interface{}, error)
}

// Property is a settable accessor on a marker type.
type Property struct {
	// Type is the declared value type name.
	Type string

	// Set assigns value to the property of target.
	Set func(target, value interface{}) error
}

// MarkerType describes a marker's declared shape: its identity, base marker
// type, constructors, settable properties, and the records applied to the
// marker type itself (its usage policy).
type MarkerType struct {
	Name         string
	Assembly     string
	Base         string
	Constructors []Constructor
	Properties   map[string]Property
	Declared     []AttributeRecord
}

// QualifiedName returns "Name, Assembly".
func (t *MarkerType) QualifiedName() string {
	if t.Assembly == "" {
		return t.Name
	}
	return t.Name + ", " + t.Assembly
}

// Element returns the type element describing the marker type.
func (t *MarkerType) Element() Element {
	return TypeElement(t.Assembly, t.Name)
}

// Constructor finds the constructor whose parameter type list matches params.
func (t *MarkerType) Constructor(params []string) (Constructor, bool) {
	for _, c := range t.Constructors {
		if len(c.Params) != len(params) {
			continue
		}
		match := true
		for i := range params {
			if c.Params[i] != params[i] {
				match = false
				break
			}
		}
		if match {
			return c, true
		}
	}
	return Constructor{}, false
}

// Property returns the settable accessor for name.
func (t *MarkerType) Property(name string) (Property, bool) {
	p, ok := t.Properties[name]
	return p, ok
}

// ArgType maps an argument type name to its Go representation.
type ArgType struct {
	Name string
	Go   reflect.Type

	// Parse converts a raw manifest value into Go. When nil the engine
	// performs a plain reflective conversion.
	Parse func(raw interface{}) (interface{}, error)
}

// Instance is a materialized marker.
type Instance struct {
	Type  *MarkerType
	Value interface{}
}

// String returns the marker's type name.
func (i Instance) String() string {
	if i.Type == nil {
		return fmt.Sprintf("%T", i.Value)
	}
	return i.Type.Name
}

// Result is the ordered outcome of one resolution: repeatable markers in
// discovery order, then the single winner of each non-repeatable marker type.
type Result []Instance

// Len returns the number of instances.
func (r Result) Len() int {
	return len(r)
}

// Values returns the marker values in order.
func (r Result) Values() []interface{} {
	out := make([]interface{}, len(r))
	for i, inst := range r {
		out[i] = inst.Value
	}
	return out
}

// First returns the first marker value of type T in r.
func First[T any](r Result) (T, bool) {
	for _, inst := range r {
		if v, ok := inst.Value.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// All returns every marker value of type T in r, preserving order.
func All[T any](r Result) []T {
	var out []T
	for _, inst := range r {
		if v, ok := inst.Value.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// UsageTypeName is the well-known meta-marker declaring a marker type's usage policy.
const UsageTypeName = "System.AttributeUsageAttribute"

// Usage is the materialized usage meta-marker.
type Usage struct {
	ValidOn       int
	AllowMultiple bool
	Inherited     bool
}
