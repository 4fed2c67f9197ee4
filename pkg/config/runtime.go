package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tessera-run/tessera/pkg/telemetry"
)

// DefaultRuntimeFile is read when no configuration file is given.
const DefaultRuntimeFile = "tessera.yaml"

// Runtime is the tool configuration read from tessera.yaml.
type Runtime struct {
	Telemetry *telemetry.Config `yaml:"telemetry" validate:"required"`
	Store     StoreConfig       `yaml:"store"`
	Policies  []string          `yaml:"policies" validate:"dive,required"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
	Cache     CacheConfig       `yaml:"cache"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	// Path is the SQLite database file; ":memory:" keeps history in memory.
	Path string `yaml:"path" validate:"required"`
}

// DiscoveryConfig configures discovery passes.
type DiscoveryConfig struct {
	// Workers bounds concurrent type inspection. Zero picks the default.
	Workers int `yaml:"workers" validate:"gte=0"`

	// AvailableParallelism replaces a zero worker count in parallelization
	// settings. Zero means the host CPU count.
	AvailableParallelism int `yaml:"available_parallelism" validate:"gte=0"`
}

// CacheConfig configures resolution memoization.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultRuntime returns the built-in defaults.
func DefaultRuntime() *Runtime {
	return &Runtime{
		Telemetry: telemetry.DefaultConfig(),
		Store:     StoreConfig{Path: ".tessera/history.db"},
		Discovery: DiscoveryConfig{Workers: 8},
		Cache:     CacheConfig{Enabled: true},
	}
}

// Parallelism returns the effective available parallelism.
func (r *Runtime) Parallelism() int {
	if r.Discovery.AvailableParallelism > 0 {
		return r.Discovery.AvailableParallelism
	}
	return runtime.NumCPU()
}

// Validate checks struct constraints and the telemetry block.
func (r *Runtime) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return convertValidatorErrors(err)
	}
	if err := r.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}

// LoadRuntime reads path over the defaults. An empty path reads
// DefaultRuntimeFile when it exists and falls back to the defaults otherwise.
func LoadRuntime(path string) (*Runtime, error) {
	cfg := DefaultRuntime()

	explicit := path != ""
	if !explicit {
		path = DefaultRuntimeFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
