package settings

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
)

func parallelizeRecord(workers interface{}, scope interface{}) engine.AttributeRecord {
	rec := engine.AttributeRecord{MarkerType: markers.ParallelizeName + ", " + markers.FrameworkAssembly}
	if workers != nil {
		rec.Named = append(rec.Named, engine.NamedArgument{
			Name: "Workers", Value: engine.TypedValue{Type: markers.TypeInt32, Value: workers},
		})
	}
	if scope != nil {
		rec.Named = append(rec.Named, engine.NamedArgument{
			Name: "Scope", Value: engine.TypedValue{Type: markers.TypeExecutionScope, Value: scope},
		})
	}
	return rec
}

func newTestExtractor(t *testing.T, asm metadata.Assembly, available int) *Extractor {
	t.Helper()

	snapshot, err := metadata.NewSnapshot(&metadata.Manifest{Assemblies: []metadata.Assembly{asm}})
	if err != nil {
		t.Fatalf("Failed to build snapshot: %v", err)
	}
	registry := markers.NewRegistry()
	x, err := NewExtractor(engine.NewResolver(snapshot, registry), registry, available, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create extractor: %v", err)
	}
	return x
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		attributes []engine.AttributeRecord
		mode       string
		want       Settings
	}{
		{
			name: "no markers",
			want: Settings{Workers: DefaultWorkers, Scope: markers.ClassLevel, CanParallelize: true},
		},
		{
			name:       "explicit workers and scope",
			attributes: []engine.AttributeRecord{parallelizeRecord(4, "MethodLevel")},
			want:       Settings{Workers: 4, Scope: markers.MethodLevel, CanParallelize: true},
		},
		{
			name:       "zero workers uses available parallelism",
			attributes: []engine.AttributeRecord{parallelizeRecord(0, nil)},
			want:       Settings{Workers: 12, Scope: markers.ClassLevel, CanParallelize: true},
		},
		{
			name:       "parallelize without workers",
			attributes: []engine.AttributeRecord{parallelizeRecord(nil, 1)},
			want:       Settings{Workers: 12, Scope: markers.MethodLevel, CanParallelize: true},
		},
		{
			name:       "suppression only",
			attributes: []engine.AttributeRecord{markers.Record(markers.DoNotParallelizeName)},
			want:       Settings{Workers: DefaultWorkers, Scope: markers.ClassLevel, CanParallelize: false},
		},
		{
			name: "suppression wins over parallelization",
			attributes: []engine.AttributeRecord{
				parallelizeRecord(8, nil),
				markers.Record(markers.DoNotParallelizeName),
			},
			want: Settings{Workers: 8, Scope: markers.ClassLevel, CanParallelize: false},
		},
		{
			name:       "inspection-only module",
			mode:       "inspection-only",
			attributes: []engine.AttributeRecord{parallelizeRecord(2, "ClassLevel")},
			want:       Settings{Workers: 2, Scope: markers.ClassLevel, CanParallelize: true},
		},
		{
			name:       "malformed marker is ignored",
			attributes: []engine.AttributeRecord{parallelizeRecord("many", nil)},
			want:       Settings{Workers: DefaultWorkers, Scope: markers.ClassLevel, CanParallelize: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asm := metadata.Assembly{Name: "Contoso.Tests", Mode: tt.mode, Attributes: tt.attributes}
			x := newTestExtractor(t, asm, 12)

			got, err := x.Extract(engine.AssemblyElement("Contoso.Tests"))
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	x := newTestExtractor(t, metadata.Assembly{Name: "Contoso.Tests", Unreadable: true}, 4)

	if _, err := x.Extract(engine.AssemblyElement("Contoso.Tests")); !engine.IsUnavailable(err) {
		t.Errorf("Expected ElementUnavailable, got: %v", err)
	}
	if _, err := x.Extract(engine.TypeElement("Contoso.Tests", "Contoso.Tests.T")); err == nil {
		t.Error("Expected error for non-assembly element")
	}
}

func TestNewExtractor_Validation(t *testing.T) {
	registry := markers.NewRegistry()
	if _, err := NewExtractor(nil, registry, 0, zerolog.Nop()); err == nil {
		t.Error("Expected error for zero available parallelism")
	}
	if _, err := NewExtractor(nil, markers.NewEmptyRegistry(), 4, zerolog.Nop()); err == nil {
		t.Error("Expected error when the parallelization markers are unknown")
	}
}
