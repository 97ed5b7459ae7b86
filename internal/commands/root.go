// Package commands implements the keihictl administration CLI.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keihi-platform/api/internal/config"
	"github.com/keihi-platform/api/internal/identity"
	"github.com/keihi-platform/api/internal/platform"
	"github.com/keihi-platform/api/internal/store"
)

// Runtime is what every subcommand needs to reach the tenant data.
type Runtime struct {
	Store    store.Store
	Paths    store.Paths
	Identity identity.Provider
	Logger   *slog.Logger
	Close    func() error
}

// Opener builds the Runtime once flags are parsed.
type Opener func(ctx context.Context) (*Runtime, error)

// OpenFromEnv loads configuration from the environment and opens the
// configured backends.
func OpenFromEnv(ctx context.Context) (*Runtime, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	b, err := platform.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Store:    b.Store,
		Paths:    b.Paths,
		Identity: b.Identity,
		Logger:   logger,
		Close:    b.Close,
	}, nil
}

type globalFlags struct {
	tenant string
	actor  string
}

func (g *globalFlags) requireTenant() error {
	if g.tenant == "" {
		return errors.New("--tenant is required")
	}
	return nil
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(open Opener) *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "keihictl",
		Short: "Expense back-office administration",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.tenant, "tenant", "", "company ID to operate on")
	rootCmd.PersistentFlags().StringVar(&flags.actor, "actor", "keihictl", "actor recorded in audit logs")

	rootCmd.AddCommand(
		newImportCommand(open, flags),
		newSeedCommand(open, flags),
		newSetupUserCommand(open, flags),
	)
	return rootCmd
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(ctx context.Context, open Opener, fn func(rt *Runtime) error) error {
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	return fn(rt)
}
