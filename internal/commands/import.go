package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keihi-platform/api/internal/audit"
	"github.com/keihi-platform/api/internal/importer"
)

func newImportCommand(open Opener, flags *globalFlags) *cobra.Command {
	var kind string
	var file string
	var maxRows int

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a master file (CSV or XLSX) into a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.requireTenant(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}

			return withRuntime(cmd.Context(), open, func(rt *Runtime) error {
				auditLogger := audit.NewLogger(rt.Store, rt.Paths)
				im := importer.New(rt.Store, rt.Paths, auditLogger, rt.Logger, importer.WithMaxRows(maxRows))
				res, err := im.Import(cmd.Context(), importer.Request{
					TenantID: flags.tenant,
					ActorID:  flags.actor,
					Kind:     kind,
					FileName: filepath.Base(file),
					Data:     data,
				})
				if err != nil {
					return fmt.Errorf("import %s: %w", kind, err)
				}

				out := cmd.OutOrStdout()
				success(out, "%s", res.Message)
				info(out, "type=%s imported=%d skipped=%d", res.Kind, res.ImportedCount, res.SkippedCount)
				for _, w := range res.Warnings {
					warning(out, "%s", w)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "type", "", "master type: accounts, subAccounts, departments or taxes (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&file, "file", "", "path to the CSV or XLSX file (required)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().IntVar(&maxRows, "max-rows", 20000, "reject files with more data rows")

	return cmd
}
