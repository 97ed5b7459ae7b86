package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/seed"
)

func newSeedCommand(open Opener, flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write categories and export profiles from a YAML seed file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireTenant(); err != nil {
				return err
			}
			f, err := seed.Load(file)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), open, func(rt *Runtime) error {
				res, err := seed.Apply(cmd.Context(), rt.Store, rt.Paths, audit.NewLogger(rt.Store, rt.Paths), flags.tenant, flags.actor, f)
				if err != nil {
					return fmt.Errorf("seed %s: %w", flags.tenant, err)
				}
				success(cmd.OutOrStdout(), "seeded %s: %d categories, %d export profiles", flags.tenant, res.Categories, res.ExportProfiles)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "seed.yaml", "path to the seed file")
	return cmd
}
