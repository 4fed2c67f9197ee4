// Package markers provides the marker catalog used by the resolution engine:
// argument types, the framework marker set and module-declared marker types.
//
// Every marker type is described by a constructor table and a settable
// property table, so instances can be built from raw records without running
// any code owned by the inspected module.
//
// The framework set covers parallelization (Parallelize, DoNotParallelize),
// test identification (TestClass, TestMethod) and test metadata (TestCategory,
// Owner, Priority, Description, Timeout, Ignore, DeploymentItem, TestProperty).
// Usage policies are declared on each marker type with the usage meta-marker,
// exactly as an inspected module would declare them:
//
//	registry := markers.NewRegistry()
//	resolver := engine.NewResolver(snapshot, registry)
//	resolver.AllowMultiple(registry.MustLookup(markers.TestCategoryName)) // true
package markers
