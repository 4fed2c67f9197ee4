// Package config loads metadata manifests and the tool's runtime
// configuration.
//
// # Manifests
//
// A manifest describes the inspected modules: assemblies, their types and
// methods, and the raw attribute records applied to each. ManifestLoader
// picks a decoder by file extension:
//
//   - .yaml, .yml, .json: decoded with gopkg.in/yaml.v3, unknown fields rejected
//   - .cue or a directory: unified with the built-in #Manifest CUE schema
//   - .star: a Starlark script defining an assemblies global
//
// Every manifest is then validated with validator struct tags and against
// the #Manifest schema, so all formats share one set of rules.
//
// Starlark scripts can build records with two helpers:
//
//	def category(name):
//	    return marker("Tessera.TestCategoryAttribute", name)
//
//	assemblies = [{
//	    "name": "Contoso.Tests",
//	    "attributes": [marker("Tessera.ParallelizeAttribute", Workers = 4)],
//	    "types": [{
//	        "name": "Contoso.Tests.Level%d" % i,
//	        "base": "Contoso.Tests.Level%d" % (i - 1) if i > 0 else "",
//	        "attributes": [category("level-%d" % i)],
//	    } for i in range(12)],
//	}]
//
// Plain values passed to marker are typed from their Starlark type; use
// typed("System.Int64", 5) or typed("System.String[]", ["a", "b"]) otherwise.
//
// # Runtime Configuration
//
// LoadRuntime reads tessera.yaml over DefaultRuntime:
//
//	telemetry:
//	  logging: {level: debug, format: json}
//	store:
//	  path: .tessera/history.db
//	policies: [policies/]
//	discovery:
//	  workers: 8
//	  available_parallelism: 0
//	cache:
//	  enabled: true
//
// # Watching
//
// Watcher reloads a manifest when its file changes, debouncing bursts of
// editor writes.
package config
