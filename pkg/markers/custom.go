package markers

import (
	"fmt"

	"github.com/tessera-run/tessera/pkg/engine"
)

// Declaration describes a marker type declared by an inspected module rather
// than by the framework.
type Declaration struct {
	// Name is the full type name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Base is the assembly-qualified name of the base marker type, if any.
	Base string `json:"base,omitempty" yaml:"base,omitempty"`

	// Constructors lists the parameter type names of each constructor. A
	// declaration without constructors gets a single parameterless one.
	Constructors [][]string `json:"constructors,omitempty" yaml:"constructors,omitempty"`

	// Properties maps settable property names to their type names.
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Attributes are the records applied to the marker type itself.
	Attributes []engine.AttributeRecord `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`
}

// Custom is a materialized module-declared marker.
type Custom struct {
	Type       string
	Args       []interface{}
	Properties map[string]interface{}
}

// MarkerType builds the descriptor of d as owned by assembly.
func (d Declaration) MarkerType(assembly string) *engine.MarkerType {
	t := &engine.MarkerType{
		Name:       d.Name,
		Assembly:   assembly,
		Base:       d.Base,
		Properties: make(map[string]engine.Property, len(d.Properties)),
		Declared:   d.Attributes,
	}

	signatures := d.Constructors
	if len(signatures) == 0 {
		signatures = [][]string{nil}
	}
	for _, params := range signatures {
		t.Constructors = append(t.Constructors, engine.Constructor{
			Params: params,
			New: func(args []interface{}) (interface{}, error) {
				return &Custom{
					Type:       d.Name,
					Args:       append([]interface{}(nil), args...),
					Properties: make(map[string]interface{}),
				}, nil
			},
		})
	}

	for name, typeName := range d.Properties {
		t.Properties[name] = engine.Property{
			Type: typeName,
			Set: func(target, value interface{}) error {
				c, ok := target.(*Custom)
				if !ok {
					return fmt.Errorf("%w: target is %T", engine.ErrBadImageFormat, target)
				}
				c.Properties[name] = value
				return nil
			},
		}
	}

	return t
}
