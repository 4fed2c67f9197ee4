package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/engine"
	"github.com/tessera-run/tessera/pkg/settings"
)

func newSettingsCommand() *cobra.Command {
	var assemblies []string

	cmd := &cobra.Command{
		Use:   "settings <manifest>",
		Short: "Show assembly parallelization settings",
		Long: `Show the parallelization settings declared on each assembly.

A Parallelize marker sets the worker count and scope; a worker count of 0
means the available parallelism. A DoNotParallelize marker suppresses
parallel execution. Assemblies without markers report -1 workers.`,
		Example: `  # Settings of every assembly
  tessera settings tests.yaml

  # Settings of one assembly as JSON
  tessera settings tests.yaml --assembly Contoso.Tests --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			p, err := env.loadPipeline(ctx, args[0])
			if err != nil {
				return err
			}

			targets := p.snapshot.Assemblies()
			if len(assemblies) > 0 {
				targets = targets[:0]
				for _, name := range assemblies {
					targets = append(targets, engine.AssemblyElement(name))
				}
			}

			type row struct {
				Assembly string             `json:"assembly"`
				Settings *settings.Settings `json:"settings,omitempty"`
				Error    string             `json:"error,omitempty"`
			}
			rows := make([]row, 0, len(targets))
			for _, asm := range targets {
				s, err := p.extractor.Extract(asm)
				switch {
				case err == nil:
					rows = append(rows, row{Assembly: asm.Assembly, Settings: &s})
				case engine.IsUnavailable(err):
					rows = append(rows, row{Assembly: asm.Assembly, Error: err.Error()})
				default:
					return err
				}
			}
			env.flushCacheStats(p)

			if jsonOutput {
				return printJSON(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ASSEMBLY\tWORKERS\tSCOPE\tPARALLEL")
			for _, r := range rows {
				if r.Settings == nil {
					fmt.Fprintf(w, "%s\t-\t-\t%s\n", r.Assembly, r.Error)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%t\n", r.Assembly, r.Settings.Workers, r.Settings.Scope, r.Settings.CanParallelize)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVarP(&assemblies, "assembly", "a", nil, "limit to these assemblies")

	return cmd
}
