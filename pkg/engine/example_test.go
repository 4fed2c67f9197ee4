package engine_test

import (
	"fmt"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/metadata"
)

// Example_overrideChain resolves markers across a method override chain. The
// overriding method's display name wins; categories from every level are kept,
// most-derived first.
func Example_overrideChain() {
	snapshot, err := metadata.NewSnapshot(&metadata.Manifest{
		Assemblies: []metadata.Assembly{{
			Name: "Contoso.Tests",
			Types: []metadata.Type{
				{
					Name: "Contoso.Tests.BaseTests",
					Methods: []metadata.Method{{
						Name: "Checkout",
						Attributes: []engine.AttributeRecord{
							markers.Record(markers.TestMethodName, "base checkout"),
							markers.Record(markers.TestCategoryName, "payments"),
						},
					}},
				},
				{
					Name: "Contoso.Tests.EuropeTests",
					Base: "Contoso.Tests.BaseTests",
					Methods: []metadata.Method{{
						Name:      "Checkout",
						Overrides: "Contoso.Tests.BaseTests",
						Attributes: []engine.AttributeRecord{
							markers.Record(markers.TestMethodName, "EU checkout"),
							markers.Record(markers.TestCategoryName, "eu"),
							// Not resolvable: silently skipped.
							{MarkerType: "Contoso.Legacy.RetryAttribute, Contoso.Legacy"},
						},
					}},
				},
			},
		}},
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	registry := markers.NewRegistry()
	resolver := engine.NewResolver(snapshot, registry)

	method := engine.MethodElement("Contoso.Tests", "Contoso.Tests.EuropeTests", "Checkout")
	result, err := resolver.ResolveAll(method, true)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	for _, inst := range result {
		switch v := inst.Value.(type) {
		case *markers.TestCategory:
			fmt.Println("category", v.Categories[0])
		case *markers.TestMethod:
			fmt.Println("test method", v.DisplayName)
		}
	}

	// Output:
	// category eu
	// category payments
	// test method EU checkout
}
