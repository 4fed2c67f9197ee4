package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/policy"
	"github.com/tessera-run/tessera/pkg/telemetry"
)

// discoverOptions are the flags shared by discover and watch.
type discoverOptions struct {
	workers int
	lint    bool
	record  bool
}

func (o *discoverOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&o.workers, "workers", "w", 0, "concurrent type inspections (default from config)")
	cmd.Flags().BoolVar(&o.lint, "lint", false, "evaluate lint policies over discovered tests")
	cmd.Flags().BoolVar(&o.record, "record", false, "record the run in the history database")
}

func newDiscoverCommand() *cobra.Command {
	var opts discoverOptions

	cmd := &cobra.Command{
		Use:   "discover <manifest>",
		Short: "Discover tests and their metadata",
		Long: `Discover the test classes and test methods of every assembly in a manifest.

For each test this command resolves its categories, owner, priority,
description, timeout, ignore state, deployment items and properties,
following the type and method inheritance chains. Assemblies that cannot
be introspected are reported and skipped.`,
		Example: `  # Discover tests
  tessera discover tests.yaml

  # Discover, lint and record the run
  tessera discover tests.yaml --lint --record

  # Machine-readable report
  tessera discover tests.yaml --json`,
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

			var eng *policy.Engine
			if opts.lint {
				if eng, err = env.policyEngine(ctx); err != nil {
					return err
				}
			}

			outcome, err := env.runDiscovery(ctx, p, eng, args[0], opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(outcome); err != nil {
					return err
				}
			} else {
				printOutcome(outcome)
			}

			if outcome.Lint != nil && !outcome.Lint.Allowed {
				return fmt.Errorf("lint failed: %d blocking violations", countBlocking(outcome.Lint))
			}
			return nil
		},
	}

	opts.bind(cmd)

	return cmd
}

// discoveryOutcome is the printable result of one discovery pass.
type discoveryOutcome struct {
	Report *discovery.Report `json:"report"`
	Lint   *policy.Result    `json:"lint,omitempty"`
}

// runDiscovery discovers, optionally lints and records one run.
func (env *environment) runDiscovery(ctx context.Context, p *pipeline, eng *policy.Engine, manifest string, opts discoverOptions) (*discoveryOutcome, error) {
	d, err := env.discoverer(p, opts.workers)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = telemetry.WithRunContext(ctx, runID, len(p.snapshot.Assemblies()))

	report, err := d.Discover(ctx, runID)
	tests := 0
	if report != nil {
		tests = len(report.Tests())
	}
	telemetry.EndRunContext(ctx, tests, err)
	env.flushCacheStats(p)
	if err != nil {
		return nil, err
	}

	outcome := &discoveryOutcome{Report: report}

	if eng != nil {
		if outcome.Lint, err = env.lint(ctx, eng, report); err != nil {
			return nil, err
		}
	}

	if opts.record {
		store, err := env.openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		if _, err := store.RecordRun(ctx, manifest, report, outcome.Lint); err != nil {
			return nil, err
		}
	}

	log.Info().
		Str("run_id", runID).
		Str("trace_id", telemetry.TraceID(ctx)).
		Int("assemblies", len(report.Assemblies)).
		Int("tests", tests).
		Int("failed_assemblies", len(report.Failed())).
		Dur("duration", report.Duration).
		Msg("Discovery complete")

	return outcome, nil
}

func printOutcome(o *discoveryOutcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, asm := range o.Report.Assemblies {
		if asm.Error != "" {
			fmt.Fprintf(w, "%s\tunavailable: %s\n", asm.Assembly, asm.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d tests\n", asm.Assembly, asm.Settings, len(asm.Tests))
		for _, tc := range asm.Tests {
			status := ""
			if tc.Ignored {
				status = "ignored"
			}
			fmt.Fprintf(w, "  %s.%s\t%s\t%s\n", tc.Class, tc.Method, strings.Join(tc.Categories, ","), status)
		}
		for _, f := range asm.Failures {
			fmt.Fprintf(w, "  %s\tunavailable: %s\n", f.Type, f.Error)
		}
	}
	_ = w.Flush()

	if o.Lint == nil {
		return
	}
	fmt.Println()
	if len(o.Lint.Violations) == 0 {
		fmt.Printf("Lint passed (%d policies)\n", len(o.Lint.EvaluatedPolicies))
		return
	}
	for _, v := range o.Lint.Violations {
		fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
	}
	for _, warning := range o.Lint.Warnings {
		fmt.Printf("[warning] %s\n", warning)
	}
}

func countBlocking(r *policy.Result) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			n++
		}
	}
	return n
}
