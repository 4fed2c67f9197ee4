package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tessera-run/tessera/pkg/metadata"
)

// ManifestLoader reads manifests in any supported format, chosen by file
// extension: .yaml/.yml/.json (YAML), .cue or a directory (CUE), .star (Starlark).
// Every manifest is checked against the built-in schema and struct tags.
type ManifestLoader struct {
	cue       *CUELoader
	starlark  *StarlarkLoader
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewManifestLoader creates a loader for all manifest formats.
func NewManifestLoader() *ManifestLoader {
	cl := NewCUELoader()
	return &ManifestLoader{
		cue:       cl,
		starlark:  NewStarlarkLoader(DefaultStarlarkTimeout),
		schemas:   cl.schemas,
		validator: validator.New(),
	}
}

// Load reads and validates the manifest at path.
func (ml *ManifestLoader) Load(ctx context.Context, path string) (*metadata.Manifest, error) {
	m, err := ml.decode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", path, err)
	}
	if err := ml.Validate(ctx, m); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return m, nil
}

// LoadSnapshot loads the manifest at path and indexes it.
func (ml *ManifestLoader) LoadSnapshot(ctx context.Context, path string) (*metadata.Snapshot, error) {
	m, err := ml.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return metadata.NewSnapshot(m)
}

// Validate checks a decoded manifest against the schema and struct tags.
func (ml *ManifestLoader) Validate(ctx context.Context, m *metadata.Manifest) error {
	if err := ml.validator.Struct(m); err != nil {
		return convertValidatorErrors(err)
	}
	return ml.schemas.ValidateManifest(ctx, m)
}

func (ml *ManifestLoader) decode(ctx context.Context, path string) (*metadata.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ml.cue.Load(ctx, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return DecodeYAMLManifest(data)
	case ".cue":
		return ml.cue.Load(ctx, path)
	case ".star":
		return ml.starlark.Load(ctx, path)
	}
	return nil, fmt.Errorf("unsupported manifest format: %s", filepath.Ext(path))
}

// DecodeYAMLManifest decodes a YAML or JSON manifest, rejecting unknown fields.
func DecodeYAMLManifest(data []byte) (*metadata.Manifest, error) {
	var m metadata.Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// convertValidatorErrors maps validator field errors to ValidationErrors.
func convertValidatorErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed %q constraint", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed %q constraint (%s)", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{
			Path:     fe.Namespace(),
			Message:  msg,
			Severity: "error",
		})
	}
	return out
}
