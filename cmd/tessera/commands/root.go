package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tessera",
		Short: "Tessera - test metadata resolution and discovery",
		Long: `Tessera resolves declarative markers attached to assemblies, types and
methods, following inheritance and override chains, and turns them into
test discovery results and run settings.

Features:
  - Manifests in YAML, JSON, CUE or Starlark
  - Inheritance-aware marker resolution with usage policies
  - Concurrent test discovery with parallelization settings
  - Rego lint policies over discovered tests
  - Run history in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default tessera.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newSettingsCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newMarkersCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
