package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List lint policies",
		Long: `List the built-in lint policies and those loaded from the policy
paths in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			eng, err := env.policyEngine(ctx)
			if err != nil {
				return err
			}
			policies := eng.ListPolicies()

			if jsonOutput {
				for i := range policies {
					policies[i].Rego = ""
				}
				return printJSON(policies)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POLICY\tSEVERITY\tENABLED\tTAGS\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Severity, p.Enabled, strings.Join(p.Tags, ","), p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}
