package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/markers"
	"github.com/tessera-run/tessera/pkg/telemetry"
)

func newResolveCommand() *cobra.Command {
	var (
		assembly string
		typeName string
		method   string
		marker   string
		inherit  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <manifest>",
		Short: "Resolve the markers of one element",
		Long: `Resolve the markers that apply to an assembly, type or method.

With --inherit, type and method resolution walks base types and overridden
base methods. Markers whose usage policy forbids repetition keep only the
most derived instance.`,
		Example: `  # All markers on an assembly
  tessera resolve tests.yaml --assembly Contoso.Tests

  # Inherited categories of a method
  tessera resolve tests.yaml --assembly Contoso.Tests \
    --type Contoso.Tests.LoginTests --method SignIn \
    --marker Tessera.TestCategoryAttribute --inherit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			element, err := elementFromFlags(assembly, typeName, method)
			if err != nil {
				return err
			}

			p, err := env.loadPipeline(ctx, args[0])
			if err != nil {
				return err
			}

			var target *engine.MarkerType
			if marker != "" {
				target, err = p.registry.LookupMarker(qualifyMarker(marker))
				if err != nil {
					return err
				}
			}

			ctx, span := env.tel.Tracer.StartResolveSpan(ctx, element.String(), marker, inherit)
			result, err := p.resolving.Resolve(element, target, inherit)
			if err != nil {
				telemetry.RecordError(span, err)
				span.End()
				return err
			}
			span.SetAttributes(telemetry.AttrInstances.Int(result.Len()))
			telemetry.RecordSuccess(span)
			span.End()
			env.flushCacheStats(p)

			if jsonOutput {
				type entry struct {
					Marker string      `json:"marker"`
					Value  interface{} `json:"value"`
				}
				out := make([]entry, 0, result.Len())
				for _, inst := range result {
					out = append(out, entry{Marker: inst.String(), Value: inst.Value})
				}
				return printJSON(out)
			}

			if result.Len() == 0 {
				fmt.Printf("No markers on %s\n", element)
				return nil
			}
			for _, inst := range result {
				fmt.Printf("%s %+v\n", inst, inst.Value)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&assembly, "assembly", "a", "", "assembly name")
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "full type name")
	cmd.Flags().StringVarP(&method, "method", "m", "", "method name (requires --type)")
	cmd.Flags().StringVar(&marker, "marker", "", "marker type name; all markers when empty")
	cmd.Flags().BoolVar(&inherit, "inherit", false, "include markers inherited from base types and methods")
	_ = cmd.MarkFlagRequired("assembly")

	return cmd
}

// elementFromFlags builds the element addressed by the resolve flags.
func elementFromFlags(assembly, typeName, method string) (engine.Element, error) {
	switch {
	case method != "" && typeName == "":
		return engine.Element{}, fmt.Errorf("--method requires --type")
	case method != "":
		return engine.MethodElement(assembly, typeName, method), nil
	case typeName != "":
		return engine.TypeElement(assembly, typeName), nil
	default:
		return engine.AssemblyElement(assembly), nil
	}
}

// qualifyMarker adds the framework assembly to unqualified marker names.
func qualifyMarker(name string) string {
	if strings.Contains(name, ",") {
		return name
	}
	return name + ", " + markers.FrameworkAssembly
}
