// Package settings derives assembly-level run configuration from the
// parallelization markers applied to an assembly.
package settings

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
)

// DefaultWorkers is reported when an assembly declares no parallelization marker.
const DefaultWorkers = -1

// Settings is the run configuration of one assembly.
type Settings struct {
	// Workers is the degree of parallelism; -1 when not configured.
	Workers int `json:"workers" yaml:"workers"`

	// Scope is the unit of parallel execution.
	Scope markers.ExecutionScope `json:"scope" yaml:"scope"`

	// CanParallelize is false when the assembly suppresses parallel execution.
	CanParallelize bool `json:"can_parallelize" yaml:"can_parallelize"`
}

// String renders the settings for logs and CLI output.
func (s Settings) String() string {
	return fmt.Sprintf("workers=%d scope=%s parallelize=%t", s.Workers, s.Scope, s.CanParallelize)
}

// MarkerLookup resolves marker types by name.
type MarkerLookup interface {
	LookupMarker(qualifiedName string) (*engine.MarkerType, error)
}

// Extractor reads parallelization settings through the resolution engine.
type Extractor struct {
	resolver             engine.Resolving
	parallelize          *engine.MarkerType
	doNotParallelize     *engine.MarkerType
	availableParallelism int
	logger               zerolog.Logger
}

// NewExtractor creates an extractor. availableParallelism is the host's
// available parallelism, substituted when a marker asks for zero workers.
func NewExtractor(resolver engine.Resolving, lookup MarkerLookup, availableParallelism int, logger zerolog.Logger) (*Extractor, error) {
	if availableParallelism <= 0 {
		return nil, fmt.Errorf("available parallelism must be positive, got %d", availableParallelism)
	}

	parallelize, err := lookup.LookupMarker(markers.ParallelizeName + ", " + markers.FrameworkAssembly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parallelization marker: %w", err)
	}
	doNotParallelize, err := lookup.LookupMarker(markers.DoNotParallelizeName + ", " + markers.FrameworkAssembly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve suppression marker: %w", err)
	}

	return &Extractor{
		resolver:             resolver,
		parallelize:          parallelize,
		doNotParallelize:     doNotParallelize,
		availableParallelism: availableParallelism,
		logger:               logger.With().Str("component", "settings-extractor").Logger(),
	}, nil
}

// Extract returns the settings of an assembly element.
func (x *Extractor) Extract(assembly engine.Element) (Settings, error) {
	if assembly.Kind != engine.KindAssembly {
		return Settings{}, fmt.Errorf("settings are only defined for assemblies, got %s %s", assembly.Kind, assembly)
	}

	out := Settings{
		Workers:        DefaultWorkers,
		Scope:          markers.ClassLevel,
		CanParallelize: true,
	}

	result, err := x.resolver.Resolve(assembly, x.parallelize, false)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to resolve parallelization for %s: %w", assembly, err)
	}
	if p, ok := engine.First[*markers.Parallelize](result); ok {
		out.Workers = p.Workers
		out.Scope = p.Scope
		if out.Workers == 0 {
			out.Workers = x.availableParallelism
		}
	}

	result, err = x.resolver.Resolve(assembly, x.doNotParallelize, false)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to resolve parallelization suppression for %s: %w", assembly, err)
	}
	if result.Len() > 0 {
		out.CanParallelize = false
	}

	x.logger.Debug().
		Str("assembly", assembly.Assembly).
		Int("workers", out.Workers).
		Str("scope", out.Scope.String()).
		Bool("can_parallelize", out.CanParallelize).
		Msg("Extracted assembly settings")

	return out, nil
}
