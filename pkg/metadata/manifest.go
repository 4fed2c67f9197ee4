package metadata

import (
	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
)

// Manifest is the declarative description of one or more inspected modules.
type Manifest struct {
	// Assemblies lists the modules in load order.
	Assemblies []Assembly `json:"assemblies" yaml:"assemblies" validate:"required,dive"`
}

// Assembly describes one module.
type Assembly struct {
	// Name is the assembly name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Mode is "normal" or "inspection-only". Empty means normal.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=normal inspection-only"`

	// Unreadable marks a module whose image cannot be introspected.
	Unreadable bool `json:"unreadable,omitempty" yaml:"unreadable,omitempty"`

	// Attributes are the records applied to the assembly.
	Attributes []engine.AttributeRecord `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`

	// Markers declares marker types owned by the module.
	Markers []markers.Declaration `json:"markers,omitempty" yaml:"markers,omitempty" validate:"dive"`

	// Types lists the declared types in declaration order.
	Types []Type `json:"types,omitempty" yaml:"types,omitempty" validate:"dive"`
}

// Type describes one declared type.
type Type struct {
	// Name is the full type name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Base is "Name" (same assembly) or "Name, Assembly". Empty means the
	// universal root type.
	Base string `json:"base,omitempty" yaml:"base,omitempty"`

	// Abstract types cannot be instantiated.
	Abstract bool `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	Attributes []engine.AttributeRecord `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`

	Methods []Method `json:"methods,omitempty" yaml:"methods,omitempty" validate:"dive"`
}

// Method describes one method declared on a type.
type Method struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// Overrides names the declaring type of the overridden declaration, as
	// "Name" or "Name, Assembly". Empty means the method introduces the member.
	Overrides string `json:"overrides,omitempty" yaml:"overrides,omitempty"`

	Attributes []engine.AttributeRecord `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"dive"`
}

// ParseMode converts a manifest mode string.
func ParseMode(s string) (engine.Mode, bool) {
	switch s {
	case "", "normal":
		return engine.ModeNormal, true
	case "inspection-only":
		return engine.ModeInspectionOnly, true
	}
	return engine.ModeNormal, false
}
