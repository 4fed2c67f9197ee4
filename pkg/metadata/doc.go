// Package metadata holds the declarative model of inspected modules and the
// immutable snapshot the resolution engine reads from.
//
// A Manifest lists assemblies, their types and methods, and the raw attribute
// records applied to each. NewSnapshot indexes a manifest into a Snapshot,
// which implements engine.Provider:
//
//   - Type bases come from Type.Base; an empty base is the universal root type
//   - Method bases come from Method.Overrides, naming the declaring type of the
//     overridden declaration
//   - Every query on an assembly marked unreadable, or on an element the
//     snapshot does not contain, fails with an ElementUnavailable error
//
// Snapshots never change after construction and may be shared between
// goroutines.
package metadata
