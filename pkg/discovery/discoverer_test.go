package discovery

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-run/tessera/pkg/cache"
	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
	"github.com/tessera-run/tessera/pkg/settings"
)

const asm = "Contoso.Tests"

func rec(name string, args ...string) engine.AttributeRecord {
	return markers.Record(name, args...)
}

func intRec(name string, v int) engine.AttributeRecord {
	return engine.AttributeRecord{
		MarkerType: name + ", " + markers.FrameworkAssembly,
		Positional: []engine.TypedValue{{Type: markers.TypeInt32, Value: v}},
	}
}

func fixtureManifest() *metadata.Manifest {
	return &metadata.Manifest{
		Assemblies: []metadata.Assembly{
			{
				Name: asm,
				Attributes: []engine.AttributeRecord{
					{
						MarkerType: markers.ParallelizeName + ", " + markers.FrameworkAssembly,
						Named: []engine.NamedArgument{
							{Name: "Workers", Value: engine.TypedValue{Type: markers.TypeInt32, Value: 4}},
						},
					},
				},
				Types: []metadata.Type{
					{
						Name:     "Contoso.Tests.CheckoutTestsBase",
						Abstract: true,
						Attributes: []engine.AttributeRecord{
							rec(markers.TestClassName),
							rec(markers.TestCategoryName, "payments"),
							rec(markers.OwnerName, "platform"),
						},
						Methods: []metadata.Method{
							{
								Name: "Pay",
								Attributes: []engine.AttributeRecord{
									rec(markers.TestMethodName),
									intRec(markers.TimeoutName, 5000),
									rec(markers.TestPropertyName, "area", "billing"),
								},
							},
						},
					},
					{
						Name: "Contoso.Tests.CheckoutTests",
						Base: "Contoso.Tests.CheckoutTestsBase",
						Attributes: []engine.AttributeRecord{
							rec(markers.TestClassName),
							rec(markers.TestCategoryName, "eu"),
							rec(markers.DeploymentItemName, "fixtures/cards.json"),
						},
						Methods: []metadata.Method{
							{
								Name:      "Pay",
								Overrides: "Contoso.Tests.CheckoutTestsBase",
								Attributes: []engine.AttributeRecord{
									rec(markers.TestCategoryName, "slow"),
									rec(markers.OwnerName, "checkout"),
									intRec(markers.PriorityName, 1),
									rec(markers.TestPropertyName, "area", "eu-billing"),
								},
							},
							{
								Name: "Refund",
								Attributes: []engine.AttributeRecord{
									rec(markers.TestMethodName, "Refund a card payment"),
									rec(markers.IgnoreName, "flaky gateway"),
									rec(markers.DeploymentItemName, "fixtures/refunds.json", "data"),
								},
							},
							{Name: "Helper"},
						},
					},
					{
						// Not a test class: TestClass is resolved without inheritance.
						Name: "Contoso.Tests.CheckoutHelpers",
						Base: "Contoso.Tests.CheckoutTests",
						Methods: []metadata.Method{
							{Name: "Pay", Overrides: "Contoso.Tests.CheckoutTests"},
						},
					},
					{
						Name:       "Contoso.Tests.SmokeTests",
						Attributes: []engine.AttributeRecord{rec(markers.TestClassName), rec(markers.IgnoreName)},
						Methods: []metadata.Method{
							{Name: "Ping", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
						},
					},
				},
			},
			{Name: "Contoso.Broken", Unreadable: true},
		},
	}
}

func newDiscoverer(t *testing.T, m *metadata.Manifest, workers int) *Discoverer {
	t.Helper()

	snapshot, err := metadata.NewSnapshot(m)
	require.NoError(t, err)

	registry := markers.NewRegistry()
	memo := cache.NewMemo(engine.NewResolver(snapshot, registry))

	extractor, err := settings.NewExtractor(memo, registry, 16, zerolog.Nop())
	require.NoError(t, err)

	d, err := New(snapshot, memo, registry, extractor, Options{Workers: workers, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return d
}

func TestDiscover_FindsTestsInManifestOrder(t *testing.T) {
	d := newDiscoverer(t, fixtureManifest(), 2)

	report, err := d.Discover(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, report.Assemblies, 2)
	assert.Equal(t, "run-1", report.RunID)

	var ids []string
	for _, tc := range report.Tests() {
		ids = append(ids, tc.ID)
	}
	assert.Equal(t, []string{
		"[Contoso.Tests]Contoso.Tests.CheckoutTests.Pay",
		"[Contoso.Tests]Contoso.Tests.CheckoutTests.Refund",
		"[Contoso.Tests]Contoso.Tests.SmokeTests.Ping",
	}, ids)
}

func TestDiscover_ResolvesInheritedMetadata(t *testing.T) {
	d := newDiscoverer(t, fixtureManifest(), 1)

	report, err := d.DiscoverAssembly(context.Background(), asm)
	require.NoError(t, err)
	require.Len(t, report.Tests, 3)

	pay := report.Tests[0]
	assert.Equal(t, "Pay", pay.Method)
	assert.Equal(t, []string{"slow", "eu", "payments"}, pay.Categories)
	assert.Equal(t, "checkout", pay.Owner)
	require.NotNil(t, pay.Priority)
	assert.Equal(t, 1, *pay.Priority)
	assert.Equal(t, 5000, pay.TimeoutMs)
	assert.Equal(t, map[string]string{"area": "eu-billing"}, pay.Properties)
	assert.Equal(t, []markers.DeploymentItem{{Path: "fixtures/cards.json"}}, pay.DeploymentItems)
	assert.False(t, pay.Ignored)

	refund := report.Tests[1]
	assert.Equal(t, "Refund a card payment", refund.DisplayName)
	assert.True(t, refund.Ignored)
	assert.Equal(t, "flaky gateway", refund.IgnoreReason)
	assert.Equal(t, "platform", refund.Owner)
	assert.Nil(t, refund.Priority)
	assert.Equal(t, []markers.DeploymentItem{
		{Path: "fixtures/refunds.json", OutputDirectory: "data"},
		{Path: "fixtures/cards.json"},
	}, refund.DeploymentItems)

	ping := report.Tests[2]
	assert.True(t, ping.Ignored)
	assert.Empty(t, ping.IgnoreReason)
}

func TestDiscover_ExtractsSettings(t *testing.T) {
	d := newDiscoverer(t, fixtureManifest(), 1)

	report, err := d.DiscoverAssembly(context.Background(), asm)
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{Workers: 4, Scope: markers.ClassLevel, CanParallelize: true}, report.Settings)
}

func TestDiscover_UnreadableAssemblyDoesNotFailRun(t *testing.T) {
	d := newDiscoverer(t, fixtureManifest(), 4)

	report, err := d.Discover(context.Background(), "run-2")
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "Contoso.Broken", failed[0].Assembly)
	assert.Contains(t, failed[0].Error, "module image cannot be read")
	assert.Empty(t, failed[0].Tests)
}

func TestDiscover_HonoursCancellation(t *testing.T) {
	d := newDiscoverer(t, fixtureManifest(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Discover(ctx, "run-3")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_ManyTypesKeepOrder(t *testing.T) {
	m := &metadata.Manifest{Assemblies: []metadata.Assembly{{Name: asm}}}
	for i := 0; i < 50; i++ {
		m.Assemblies[0].Types = append(m.Assemblies[0].Types, metadata.Type{
			Name:       "Contoso.Tests.T" + string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
			Methods: []metadata.Method{
				{Name: "Run", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
			},
		})
	}

	d := newDiscoverer(t, m, 8)
	report, err := d.DiscoverAssembly(context.Background(), asm)
	require.NoError(t, err)
	require.Len(t, report.Tests, 50)
	for i, tc := range report.Tests {
		assert.Equal(t, m.Assemblies[0].Types[i].Name, tc.Class)
	}
}

func TestDiscover_UnavailableBaseTypeSkipsOnlyThatType(t *testing.T) {
	m := &metadata.Manifest{
		Assemblies: []metadata.Assembly{
			{
				Name: "Contoso.Plugins",
				Types: []metadata.Type{
					{
						Name:       "Contoso.Plugins.PluginTests",
						Base:       "Ext.Base, External",
						Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
						Methods: []metadata.Method{
							{Name: "Load", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
						},
					},
					{
						Name:       "Contoso.Plugins.LocalTests",
						Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
						Methods: []metadata.Method{
							{Name: "Run", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
						},
					},
				},
			},
			{
				Name: asm,
				Types: []metadata.Type{
					{
						Name:       "Contoso.Tests.LoginTests",
						Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
						Methods: []metadata.Method{
							{Name: "SignIn", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
						},
					},
				},
			},
		},
	}

	d := newDiscoverer(t, m, 2)
	report, err := d.Discover(context.Background(), "run-4")
	require.NoError(t, err)
	require.NotNil(t, report)

	var ids []string
	for _, tc := range report.Tests() {
		ids = append(ids, tc.ID)
	}
	assert.Equal(t, []string{
		"[Contoso.Plugins]Contoso.Plugins.LocalTests.Run",
		"[Contoso.Tests]Contoso.Tests.LoginTests.SignIn",
	}, ids)

	plugins := report.Assemblies[0]
	assert.Empty(t, plugins.Error)
	require.Len(t, plugins.Failures, 1)
	assert.Equal(t, "Contoso.Plugins.PluginTests", plugins.Failures[0].Type)
	assert.Contains(t, plugins.Failures[0].Error, "assembly not loaded")

	assert.Empty(t, report.Failed())
	assert.True(t, report.Partial())
}

func TestDiscover_InheritedTestMethods(t *testing.T) {
	m := &metadata.Manifest{
		Assemblies: []metadata.Assembly{{
			Name: asm,
			Types: []metadata.Type{
				{
					Name:       "Contoso.Tests.ApiTests",
					Attributes: []engine.AttributeRecord{rec(markers.TestClassName), rec(markers.TestCategoryName, "api")},
					Methods: []metadata.Method{
						{
							Name:       "Get",
							Attributes: []engine.AttributeRecord{rec(markers.TestMethodName), rec(markers.OwnerName, "web")},
						},
						{Name: "Post", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
					},
				},
				{
					Name:       "Contoso.Tests.V2ApiTests",
					Base:       "Contoso.Tests.ApiTests",
					Attributes: []engine.AttributeRecord{rec(markers.TestClassName), rec(markers.TestCategoryName, "v2")},
					Methods: []metadata.Method{
						{Name: "Post", Overrides: "Contoso.Tests.ApiTests"},
						{Name: "Patch", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
					},
				},
			},
		}},
	}

	d := newDiscoverer(t, m, 1)
	report, err := d.DiscoverAssembly(context.Background(), asm)
	require.NoError(t, err)

	var ids []string
	for _, tc := range report.Tests {
		ids = append(ids, tc.ID)
	}
	assert.Equal(t, []string{
		"[Contoso.Tests]Contoso.Tests.ApiTests.Get",
		"[Contoso.Tests]Contoso.Tests.ApiTests.Post",
		"[Contoso.Tests]Contoso.Tests.V2ApiTests.Post",
		"[Contoso.Tests]Contoso.Tests.V2ApiTests.Patch",
		"[Contoso.Tests]Contoso.Tests.V2ApiTests.Get",
	}, ids)

	get := report.Tests[4]
	assert.Equal(t, "Contoso.Tests.V2ApiTests", get.Class)
	assert.Equal(t, "Get", get.Method)
	assert.Equal(t, "web", get.Owner)
	assert.Equal(t, []string{"v2", "api"}, get.Categories)
}

func TestDiscover_LifecycleMethods(t *testing.T) {
	behavior := func(name, value string) engine.AttributeRecord {
		return engine.AttributeRecord{
			MarkerType: name + ", " + markers.FrameworkAssembly,
			Positional: []engine.TypedValue{{Type: markers.TypeInheritanceBehavior, Value: value}},
		}
	}

	m := &metadata.Manifest{
		Assemblies: []metadata.Assembly{{
			Name: asm,
			Types: []metadata.Type{
				{
					Name:       "Contoso.Tests.SuiteBase",
					Abstract:   true,
					Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
					Methods: []metadata.Method{
						{Name: "InitClass", Attributes: []engine.AttributeRecord{behavior(markers.ClassInitializeName, "None")}},
						{Name: "InitSuite", Attributes: []engine.AttributeRecord{behavior(markers.ClassInitializeName, "BeforeEachDerivedClass")}},
						{Name: "CleanClass", Attributes: []engine.AttributeRecord{behavior(markers.ClassCleanupName, "BeforeEachDerivedClass")}},
						{Name: "SetUp", Attributes: []engine.AttributeRecord{rec(markers.TestInitializeName)}},
						{Name: "TearDown", Attributes: []engine.AttributeRecord{rec(markers.TestCleanupName)}},
					},
				},
				{
					Name:       "Contoso.Tests.SuiteTests",
					Base:       "Contoso.Tests.SuiteBase",
					Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
					Methods: []metadata.Method{
						{Name: "Init", Attributes: []engine.AttributeRecord{rec(markers.ClassInitializeName)}},
						{Name: "Before", Attributes: []engine.AttributeRecord{rec(markers.TestInitializeName)}},
						{Name: "After", Attributes: []engine.AttributeRecord{rec(markers.TestCleanupName)}},
						{Name: "Check", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
					},
				},
				{
					Name:       "Contoso.Tests.PlainTests",
					Attributes: []engine.AttributeRecord{rec(markers.TestClassName)},
					Methods: []metadata.Method{
						{Name: "Ping", Attributes: []engine.AttributeRecord{rec(markers.TestMethodName)}},
					},
				},
			},
		}},
	}

	d := newDiscoverer(t, m, 1)
	report, err := d.DiscoverAssembly(context.Background(), asm)
	require.NoError(t, err)
	require.Len(t, report.Tests, 2)

	base := "[Contoso.Tests]Contoso.Tests.SuiteBase."
	own := "[Contoso.Tests]Contoso.Tests.SuiteTests."

	check := report.Tests[0]
	assert.Equal(t, "Check", check.Method)
	require.NotNil(t, check.Lifecycle)
	assert.Equal(t, &Lifecycle{
		ClassInitialize: []string{base + "InitSuite", own + "Init"},
		TestInitialize:  []string{base + "SetUp", own + "Before"},
		TestCleanup:     []string{own + "After", base + "TearDown"},
		ClassCleanup:    []string{base + "CleanClass"},
	}, check.Lifecycle)

	assert.Nil(t, report.Tests[1].Lifecycle)
}
