package commands

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/config"
	"github.com/tessera-run/tessera/pkg/metadata"
	"github.com/tessera-run/tessera/pkg/policy"
)

func newWatchCommand() *cobra.Command {
	var (
		opts     discoverOptions
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <manifest>",
		Short: "Rediscover tests whenever the manifest changes",
		Long: `Watch a manifest file and run discovery after every change.

With --lint, the configured policy paths are watched too and reloaded
policies apply to the next pass. When metrics are enabled in the config,
the metrics endpoint is served while watching.`,
		Example: `  # Watch and lint
  tessera watch tests.yaml --lint

  # Watch with a longer debounce
  tessera watch tests.star --debounce 1s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, env, err := newEnvironment(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close(ctx)

			path := args[0]

			if err := env.tel.StartMetricsServer(ctx); err != nil {
				return err
			}

			var eng *policy.Engine
			if opts.lint {
				if eng, err = env.policyEngine(ctx); err != nil {
					return err
				}
				if len(env.cfg.Policies) > 0 {
					loader := policy.NewLoader(env.logger)
					err := loader.Watch(ctx, env.cfg.Policies, func(policies []policy.Policy) error {
						return eng.AddPolicies(ctx, policies)
					})
					if err != nil {
						return err
					}
					defer func() { _ = loader.StopWatching() }()
				}
			}

			watcher := config.NewWatcher(config.NewManifestLoader(), path, debounce, env.logger)

			log.Info().Str("path", path).Msg("Watching manifest")

			return watcher.Run(ctx, func(m *metadata.Manifest, err error) {
				if err != nil {
					log.Error().Err(err).Msg("Manifest could not be loaded")
					return
				}

				snapshot, err := metadata.NewSnapshot(m)
				if err != nil {
					log.Error().Err(err).Msg("Manifest could not be indexed")
					return
				}
				p, err := env.newPipeline(snapshot)
				if err != nil {
					log.Error().Err(err).Msg("Marker declarations could not be registered")
					return
				}

				outcome, err := env.runDiscovery(ctx, p, eng, path, opts)
				if err != nil {
					log.Error().Err(err).Msg("Discovery failed")
					return
				}

				if jsonOutput {
					_ = printJSON(outcome)
					return
				}
				printOutcome(outcome)
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultDebounce, "delay before reloading after a change")

	return cmd
}
