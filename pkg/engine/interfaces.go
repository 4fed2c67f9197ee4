package engine

import "time"

// Provider is the input boundary: pure metadata reads over one snapshot of
// one or more modules. Implementations fail with an ElementUnavailable error
// when the owning module cannot be introspected.
type Provider interface {
	// BaseElement returns a type's direct base type or a method's overridden
	// declaration. ok is false at the hierarchy root or when the method
	// introduces the member.
	BaseElement(e Element) (base Element, ok bool, err error)

	// RawAttributes returns the records declared directly on e, excluding ancestors.
	RawAttributes(e Element) ([]AttributeRecord, error)

	// ModuleMode reports how the module owning e was loaded.
	ModuleMode(e Element) (Mode, error)
}

// Catalog resolves marker and argument types by name. A Catalog is also the
// Provider for the marker types' own elements, which is how usage policies
// are looked up through the same engine.
type Catalog interface {
	Provider

	// LookupMarker resolves an assembly-qualified marker type name. Failures
	// wrap ErrTypeLoad.
	LookupMarker(qualifiedName string) (*MarkerType, error)

	// ArgumentType resolves a scalar argument type name. Array types are
	// handled by the engine. Failures wrap ErrTypeLoad.
	ArgumentType(name string) (*ArgType, error)
}

// Resolving is implemented by the engine and by caller-side layers on top of
// it, such as memoizing caches.
type Resolving interface {
	Resolve(e Element, target *MarkerType, inherit bool) (Result, error)
}

// Observer receives resolution measurements.
type Observer interface {
	// ObserveResolution records one completed resolution.
	ObserveResolution(kind Kind, levels, instances int, d time.Duration)

	// ObserveSkipped records an attribute record absorbed as Skipped.
	ObserveSkipped(marker, code string)

	// ObservePolicyDefault records a usage policy that fell back to allow-multiple.
	ObservePolicyDefault(marker string)
}

type nopObserver struct{}

func (nopObserver) ObserveResolution(Kind, int, int, time.Duration) {}
func (nopObserver) ObserveSkipped(string, string)                   {}
func (nopObserver) ObservePolicyDefault(string)                     {}
