// Package telemetry provides observability instrumentation for Tessera.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Architecture
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - Spans around discovery runs, assemblies and resolutions
//  3. Metrics Collection - Resolution, skip, policy-default and discovery metrics
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Engine Integration
//
// Metrics implements engine.Observer, so the resolver reports into Prometheus
// directly:
//
//	resolver := engine.NewResolver(snapshot, registry,
//	    engine.WithLogger(tel.Logger.NewComponentLogger("resolver").Zerolog()),
//	    engine.WithObserver(tel.Metrics),
//	)
//
// # Metrics
//
//   - tessera_resolutions_total{kind}: Completed resolutions
//   - tessera_resolution_duration_seconds{kind}: Resolution latency
//   - tessera_resolution_levels{kind}: Hierarchy levels inspected
//   - tessera_markers_skipped_total{code}: Records that could not be materialized
//   - tessera_usage_policy_defaults_total{marker}: Usage policies defaulted to allow-multiple
//   - tessera_discovery_runs_total{status}, tessera_discovery_duration_seconds
//   - tessera_tests_discovered{assembly}, tessera_policy_violations_total{policy,severity}
//   - tessera_resolution_cache_hits_total, tessera_resolution_cache_misses_total
//
// A disabled Metrics or Tracer is a no-op, so callers never need nil checks.
package telemetry
