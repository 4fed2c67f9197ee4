package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/metadata"
)

func newMarkersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markers [manifest]",
		Short: "List known marker types",
		Long: `List the framework marker types and, given a manifest, the custom
marker types it declares. The repeatable column shows the effective usage
policy, resolved through the marker type's own markers and base types.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			var p *pipeline
			if len(args) > 0 {
				p, err = env.loadPipeline(ctx, args[0])
			} else {
				p, err = env.newPipeline(emptySnapshot())
			}
			if err != nil {
				return err
			}

			type row struct {
				Name       string `json:"name"`
				Assembly   string `json:"assembly"`
				Base       string `json:"base,omitempty"`
				Repeatable bool   `json:"repeatable"`
			}
			var rows []row
			for _, t := range p.registry.Markers() {
				rows = append(rows, row{
					Name:       t.Name,
					Assembly:   t.Assembly,
					Base:       t.Base,
					Repeatable: p.resolver.AllowMultiple(t),
				})
			}

			if jsonOutput {
				return printJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MARKER\tASSEMBLY\tBASE\tREPEATABLE")
			for _, r := range rows {
				base := r.Base
				if base == "" {
					base = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", r.Name, r.Assembly, base, r.Repeatable)
			}
			return w.Flush()
		},
	}

	return cmd
}

func emptySnapshot() *metadata.Snapshot {
	s, _ := metadata.NewSnapshot(&metadata.Manifest{})
	return s
}
