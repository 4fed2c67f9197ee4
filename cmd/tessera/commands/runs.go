package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded discovery runs",
		Long: `Inspect the run history recorded with discover --record.

Runs can be addressed by a unique prefix of their ID.`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())
	cmd.AddCommand(newRunsDiffCommand())
	cmd.AddCommand(newRunsPruneCommand())
	cmd.AddCommand(newRunsDeleteCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			store, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(runs)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tAGE\tTESTS\tFAILED\tVIOLATIONS\tMANIFEST")
			for _, r := range runs {
				fmt.Fprintf(w, "%.8s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Status, since(r.StartedAt), r.Tests, r.Failed, r.Violations, r.Manifest)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var showTests bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			store, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			assemblies, err := store.ListAssemblies(ctx, run.ID)
			if err != nil {
				return err
			}
			violations, err := store.ListViolations(ctx, run.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				out := map[string]interface{}{
					"run":        run,
					"assemblies": assemblies,
					"violations": violations,
				}
				if showTests {
					tests, err := store.ListTests(ctx, run.ID)
					if err != nil {
						return err
					}
					out["tests"] = tests
				}
				return printJSON(out)
			}

			fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
			fmt.Printf("  Manifest:   %s\n", run.Manifest)
			fmt.Printf("  Started:    %s (%s ago)\n", run.StartedAt.Local().Format(time.RFC3339), since(run.StartedAt))
			fmt.Printf("  Duration:   %s\n", run.Duration)
			fmt.Printf("  Tests:      %d\n", run.Tests)
			fmt.Printf("  Violations: %d\n", run.Violations)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nASSEMBLY\tWORKERS\tSCOPE\tPARALLEL\tTESTS\tERROR")
			for _, a := range assemblies {
				errMsg := ""
				if a.Error != nil {
					errMsg = *a.Error
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%d\t%s\n", a.Assembly, a.Workers, a.Scope, a.CanParallelize, a.Tests, errMsg)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, v := range violations {
				fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
			}

			if showTests {
				tests, err := store.ListTests(ctx, run.ID)
				if err != nil {
					return err
				}
				fmt.Println()
				for _, tc := range tests {
					fmt.Println(tc.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showTests, "tests", false, "list the discovered tests")

	return cmd
}

func newRunsDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from-run> <to-run>",
		Short: "Show tests added and removed between two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			store, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			from, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			to, err := store.GetRun(ctx, args[1])
			if err != nil {
				return err
			}

			diff, err := store.DiffRuns(ctx, from.ID, to.ID)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(diff)
			}
			for _, id := range diff.Added {
				fmt.Printf("+ %s\n", id)
			}
			for _, id := range diff.Removed {
				fmt.Printf("- %s\n", id)
			}
			return nil
		},
	}

	return cmd
}

func newRunsPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		Example: `  # Keep the last week of history
  tessera runs prune --older-than 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			store, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.PruneRuns(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			log.Info().Int64("runs", pruned).Dur("older_than", olderThan).Msg("Pruned run history")
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete runs started before this age")

	return cmd
}

func newRunsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			store, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteRun(ctx, run.ID); err != nil {
				return err
			}

			log.Info().Str("run_id", run.ID).Msg("Deleted run")
			return nil
		},
	}

	return cmd
}

// since formats the age of t for run listings.
func since(t time.Time) string {
	return time.Since(t).Round(time.Second).String()
}
