package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tessera-run/tessera/pkg/cache"
	"github.com/tessera-run/tessera/pkg/config"
	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
	"github.com/tessera-run/tessera/pkg/policy"
	"github.com/tessera-run/tessera/pkg/settings"
	"github.com/tessera-run/tessera/pkg/stores"
	"github.com/tessera-run/tessera/pkg/telemetry"
)

// environment holds the runtime configuration and telemetry of one command.
type environment struct {
	cfg    *config.Runtime
	tel    *telemetry.Telemetry
	logger zerolog.Logger
}

// newEnvironment loads the runtime configuration and starts telemetry. The
// returned context carries the telemetry instance.
func newEnvironment(ctx context.Context) (context.Context, *environment, error) {
	cfg, err := config.LoadRuntime(configPath)
	if err != nil {
		return ctx, nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	env := &environment{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}
	return tel.WithContext(ctx), env, nil
}

// Close flushes telemetry.
func (env *environment) Close(ctx context.Context) {
	if err := env.tel.Shutdown(ctx); err != nil {
		env.logger.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// pipeline is the resolution stack built over one snapshot.
type pipeline struct {
	snapshot  *metadata.Snapshot
	registry  *markers.Registry
	resolver  *engine.Resolver
	resolving engine.Resolving
	memo      *cache.Memo
	extractor *settings.Extractor
}

// loadPipeline reads the manifest at path and builds a pipeline over it.
func (env *environment) loadPipeline(ctx context.Context, path string) (*pipeline, error) {
	snapshot, err := config.NewManifestLoader().LoadSnapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	return env.newPipeline(snapshot)
}

// newPipeline registers the snapshot's marker declarations and wires the
// resolver, optional memo and settings extractor.
func (env *environment) newPipeline(snapshot *metadata.Snapshot) (*pipeline, error) {
	registry := markers.NewRegistry()

	decls := snapshot.Declarations()
	assemblies := make([]string, 0, len(decls))
	for asm := range decls {
		assemblies = append(assemblies, asm)
	}
	sort.Strings(assemblies)
	for _, asm := range assemblies {
		if err := registry.RegisterDeclarations(asm, decls[asm]); err != nil {
			return nil, fmt.Errorf("failed to register markers of %s: %w", asm, err)
		}
	}

	resolver := engine.NewResolver(snapshot, registry,
		engine.WithLogger(env.logger),
		engine.WithObserver(env.tel.Metrics),
	)

	p := &pipeline{
		snapshot:  snapshot,
		registry:  registry,
		resolver:  resolver,
		resolving: resolver,
	}
	if env.cfg.Cache.Enabled {
		p.memo = cache.NewMemo(resolver)
		p.resolving = p.memo
	}

	extractor, err := settings.NewExtractor(p.resolving, registry, env.cfg.Parallelism(), env.logger)
	if err != nil {
		return nil, err
	}
	p.extractor = extractor

	return p, nil
}

// discoverer creates a discoverer over the pipeline.
func (env *environment) discoverer(p *pipeline, workers int) (*discovery.Discoverer, error) {
	if workers <= 0 {
		workers = env.cfg.Discovery.Workers
	}
	return discovery.New(p.snapshot, p.resolving, p.registry, p.extractor, discovery.Options{
		Workers: workers,
		Logger:  env.logger,
	})
}

// flushCacheStats reports memo hits and misses since the last flush.
func (env *environment) flushCacheStats(p *pipeline) {
	if p.memo == nil {
		return
	}
	stats := p.memo.Stats()
	env.tel.Metrics.RecordCache(stats.Hits, stats.Misses)
	env.logger.Debug().
		Int("entries", stats.Entries).
		Int64("hits", stats.Hits).
		Int64("misses", stats.Misses).
		Msg("Resolution cache statistics")
	p.memo.Reset()
}

// policyEngine creates a policy engine with the configured policy paths.
func (env *environment) policyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(env.logger)
	if err != nil {
		return nil, err
	}
	if len(env.cfg.Policies) > 0 {
		if err := eng.LoadPolicies(ctx, env.cfg.Policies); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// lint evaluates the report and records violation metrics.
func (env *environment) lint(ctx context.Context, eng *policy.Engine, report *discovery.Report) (*policy.Result, error) {
	result, err := eng.Evaluate(ctx, report)
	if err != nil {
		return nil, err
	}
	for _, v := range result.Violations {
		env.tel.Metrics.RecordViolation(v.Policy, string(v.Severity))
	}
	return result, nil
}

// openStore opens the run history database, creating its directory.
func (env *environment) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := env.cfg.Store.Path
	if path != stores.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return stores.Open(ctx, path)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
