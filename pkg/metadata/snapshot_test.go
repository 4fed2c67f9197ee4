package metadata

import (
	"testing"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
)

func testManifest() *Manifest {
	return &Manifest{
		Assemblies: []Assembly{
			{
				Name: "Contoso.Core",
				Types: []Type{
					{
						Name:       "Contoso.Core.TestBase",
						Abstract:   true,
						Attributes: []engine.AttributeRecord{markers.Record(markers.TestCategoryName, "core")},
						Methods: []Method{
							{Name: "Run", Attributes: []engine.AttributeRecord{markers.Record(markers.TestMethodName)}},
							{Name: "Setup"},
						},
					},
				},
			},
			{
				Name: "Contoso.Tests",
				Mode: "inspection-only",
				Attributes: []engine.AttributeRecord{
					markers.Record(markers.DoNotParallelizeName),
				},
				Types: []Type{
					{
						Name: "Contoso.Tests.Mid",
						Base: "Contoso.Core.TestBase, Contoso.Core",
						Methods: []Method{
							{Name: "Run", Overrides: "Contoso.Core.TestBase, Contoso.Core"},
						},
					},
					{
						Name: "Contoso.Tests.Derived",
						Base: "Contoso.Tests.Mid",
						Methods: []Method{
							{Name: "Run", Overrides: "Contoso.Tests.Mid"},
							{Name: "Helper"},
						},
					},
				},
			},
			{Name: "Contoso.Broken", Unreadable: true},
		},
	}
}

func TestNewSnapshot_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		manifest *Manifest
	}{
		{name: "nil manifest"},
		{
			name:     "duplicate assembly",
			manifest: &Manifest{Assemblies: []Assembly{{Name: "A"}, {Name: "A"}}},
		},
		{
			name:     "duplicate type",
			manifest: &Manifest{Assemblies: []Assembly{{Name: "A", Types: []Type{{Name: "T"}, {Name: "T"}}}}},
		},
		{
			name: "duplicate method",
			manifest: &Manifest{Assemblies: []Assembly{{Name: "A", Types: []Type{{
				Name:    "T",
				Methods: []Method{{Name: "M"}, {Name: "M"}},
			}}}}},
		},
		{
			name:     "unknown mode",
			manifest: &Manifest{Assemblies: []Assembly{{Name: "A", Mode: "reflection"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSnapshot(tt.manifest); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestSnapshot_TypeBases(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	base, ok, err := s.BaseElement(engine.TypeElement("Contoso.Tests", "Contoso.Tests.Derived"))
	if err != nil || !ok {
		t.Fatalf("Expected base, got ok=%v err=%v", ok, err)
	}
	if base != engine.TypeElement("Contoso.Tests", "Contoso.Tests.Mid") {
		t.Errorf("Expected same-assembly base, got %s", base)
	}

	base, _, _ = s.BaseElement(engine.TypeElement("Contoso.Tests", "Contoso.Tests.Mid"))
	if base != engine.TypeElement("Contoso.Core", "Contoso.Core.TestBase") {
		t.Errorf("Expected cross-assembly base, got %s", base)
	}

	base, ok, _ = s.BaseElement(engine.TypeElement("Contoso.Core", "Contoso.Core.TestBase"))
	if !ok || base.Type != engine.RootTypeName {
		t.Errorf("Expected root type base, got %s", base)
	}
}

func TestSnapshot_MethodBases(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	levels, err := engine.Ancestry(s, engine.MethodElement("Contoso.Tests", "Contoso.Tests.Derived", "Run"), true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("Expected 3 levels, got %v", levels)
	}
	if levels[2] != engine.MethodElement("Contoso.Core", "Contoso.Core.TestBase", "Run") {
		t.Errorf("Unexpected root declaration %s", levels[2])
	}

	_, ok, err := s.BaseElement(engine.MethodElement("Contoso.Tests", "Contoso.Tests.Derived", "Helper"))
	if err != nil || ok {
		t.Errorf("Expected introducing method without base, got ok=%v err=%v", ok, err)
	}
}

func TestSnapshot_Unavailable(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	tests := []struct {
		name string
		e    engine.Element
		code string
	}{
		{name: "unreadable assembly", e: engine.AssemblyElement("Contoso.Broken"), code: engine.ErrCodeBadImageFormat},
		{name: "missing assembly", e: engine.AssemblyElement("Contoso.Missing"), code: engine.ErrCodeNotFound},
		{name: "missing type", e: engine.TypeElement("Contoso.Tests", "Contoso.Tests.Nope"), code: engine.ErrCodeNotFound},
		{name: "missing method", e: engine.MethodElement("Contoso.Tests", "Contoso.Tests.Mid", "Nope"), code: engine.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RawAttributes(tt.e)
			if !engine.IsUnavailable(err) {
				t.Fatalf("Expected ElementUnavailable, got: %v", err)
			}
			if code := engine.CodeOf(err); code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestSnapshot_Enumeration(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := len(s.Assemblies()); got != 3 {
		t.Errorf("Expected 3 assemblies, got %d", got)
	}

	types, err := s.Types("Contoso.Tests")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(types) != 2 || types[1].Element.Type != "Contoso.Tests.Derived" {
		t.Errorf("Unexpected types: %v", types)
	}

	methods, err := s.Methods(types[1].Element)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(methods) != 2 || methods[0].Method != "Run" || methods[1].Method != "Helper" {
		t.Errorf("Unexpected methods: %v", methods)
	}

	mode, err := s.ModuleMode(types[0].Element)
	if err != nil || mode != engine.ModeInspectionOnly {
		t.Errorf("Expected inspection-only, got %v (err=%v)", mode, err)
	}

	if !s.Contains(methods[1]) || s.Contains(engine.TypeElement("Contoso.Tests", "X")) {
		t.Error("Unexpected Contains result")
	}
}

func TestSnapshot_VisibleMethods(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	methods, err := s.VisibleMethods(engine.TypeElement("Contoso.Tests", "Contoso.Tests.Derived"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []engine.Element{
		engine.MethodElement("Contoso.Tests", "Contoso.Tests.Derived", "Run"),
		engine.MethodElement("Contoso.Tests", "Contoso.Tests.Derived", "Helper"),
		engine.MethodElement("Contoso.Core", "Contoso.Core.TestBase", "Setup"),
	}
	if len(methods) != len(want) {
		t.Fatalf("Expected %d methods, got %v", len(want), methods)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Errorf("Method %d: expected %s, got %s", i, want[i], methods[i])
		}
	}
}

func TestSnapshot_VisibleMethodsMissingBaseAssembly(t *testing.T) {
	s, err := NewSnapshot(&Manifest{
		Assemblies: []Assembly{{
			Name:  "Contoso.Tests",
			Types: []Type{{Name: "Contoso.Tests.Orphan", Base: "Ext.Base, External"}},
		}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err = s.VisibleMethods(engine.TypeElement("Contoso.Tests", "Contoso.Tests.Orphan"))
	if !engine.IsUnavailable(err) {
		t.Fatalf("Expected ElementUnavailable, got: %v", err)
	}
}

func TestSnapshot_ResolveThroughEngine(t *testing.T) {
	s, err := NewSnapshot(testManifest())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	registry := markers.NewRegistry()
	resolver := engine.NewResolver(s, registry)

	result, err := resolver.Resolve(
		engine.TypeElement("Contoso.Tests", "Contoso.Tests.Derived"),
		registry.MustLookup(markers.TestCategoryName),
		true,
	)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	categories := engine.All[*markers.TestCategory](result)
	if len(categories) != 1 || categories[0].Categories[0] != "core" {
		t.Errorf("Expected inherited category, got %v", categories)
	}

	_, err = resolver.ResolveAll(engine.AssemblyElement("Contoso.Broken"), false)
	if !engine.IsUnavailable(err) {
		t.Errorf("Expected ElementUnavailable, got: %v", err)
	}
}
