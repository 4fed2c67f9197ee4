package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tessera-run/tessera/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a metadata manifest",
		Long: `Validate a metadata manifest against the manifest schema.

This command checks:
  - YAML, JSON, CUE or Starlark syntax
  - Struct constraints such as required names and module modes
  - The CUE #Manifest schema`,
		Example: `  # Validate a YAML manifest
  tessera validate tests.yaml

  # Validate a CUE package
  tessera validate ./manifests`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			m, err := config.NewManifestLoader().Load(cmd.Context(), path)
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, ve := range verrs {
						fmt.Println(ve.String())
					}
				}
				return err
			}

			types := 0
			for _, asm := range m.Assemblies {
				types += len(asm.Types)
			}

			log.Info().
				Str("path", path).
				Int("assemblies", len(m.Assemblies)).
				Int("types", types).
				Msg("Manifest is valid")

			return nil
		},
	}

	return cmd
}
