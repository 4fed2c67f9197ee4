// Package engine resolves declarative markers (attributes) applied to
// assemblies, types and methods of inspected modules.
//
// # Overview
//
// The engine answers one question: given a program element, which markers
// apply to it once inheritance and cardinality are taken into account? It works
// purely from metadata. Modules never have to be executed; marker instances are
// rebuilt from their raw records through the marker type's constructor and
// property tables.
//
// A resolution runs in four steps:
//
//  1. Walk - Build the ancestor chain, most-derived first (Ancestry)
//  2. Filter - Keep records whose marker type equals or derives from the target
//  3. Materialize - Turn each record into a marker instance (Materializer)
//  4. Merge - Keep the most-derived application of unique marker types and
//     accumulate repeatable ones (Resolver)
//
// # Core Types
//
//   - Element: An assembly, type or method identity
//   - AttributeRecord: The raw, unexecuted description of one marker application
//   - TypedValue: A raw argument value with its declared type name
//   - MarkerType: A marker's constructor table, property table and usage records
//   - Instance: A materialized marker
//   - Result: The ordered outcome of one resolution
//
// # Boundaries
//
// A Provider supplies base elements and raw records for one metadata snapshot.
// A Catalog resolves marker and argument types and also acts as the Provider
// for marker types themselves, which is how the usage meta-marker
// (System.AttributeUsageAttribute) of a marker type is resolved through the same
// engine:
//
//	type Provider interface {
//	    BaseElement(e Element) (Element, bool, error)
//	    RawAttributes(e Element) ([]AttributeRecord, error)
//	    ModuleMode(e Element) (Mode, error)
//	}
//
// # Limits
//
// Every ancestor walk stops after MaxInheritanceDepth levels. Type walks stop
// before System.Object and never revisit a type. Method walks stop when a
// declaration's base definition resolves back to itself, compared by the
// concatenation of declaring type name and method name.
//
// # Error Classification
//
//   - ElementUnavailable: The owning module cannot be introspected; fatal to the resolution
//   - MarkerConstructionFailed: One record could not be materialized; skipped
//   - PolicyUnresolved: A usage policy lookup failed; treated as allow-multiple
//
// Catalogs, constructors and setters wrap ErrTypeLoad, ErrBadImageFormat or
// ErrFileLoad to request a per-record skip. Any other constructor or setter
// error aborts the resolution.
//
// # Example Usage
//
//	resolver := engine.NewResolver(snapshot, registry, engine.WithLogger(logger))
//	result, err := resolver.Resolve(engine.TypeElement("Contoso.Tests", "Contoso.Tests.LoginTests"), categoryType, true)
//	if err != nil {
//	    return err
//	}
//	for _, inst := range result {
//	    fmt.Println(inst.Type.Name)
//	}
//
// # Concurrency
//
// Resolver holds no mutable state. Concurrent resolutions over the same
// snapshot need no coordination; each call allocates fresh marker instances.
package engine
