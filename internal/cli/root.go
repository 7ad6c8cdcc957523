// Package cli implements hhctl, the operator tool for a Habit Heroes database.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"habitheroes/internal/app"
	"habitheroes/internal/clock"
	"habitheroes/internal/config"
	"habitheroes/internal/database"
)

// NewRootCommand creates the hhctl command tree
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hhctl",
		Short:         "Habit Heroes maintenance tool",
		Long:          "hhctl migrates, backs up and restores the Habit Heroes database and runs background jobs by hand.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newMigrateCmd(),
		newExportCmd(),
		newImportCmd(),
		newJobsCmd(),
		newCatalogCmd(),
	)
	return cmd
}

// Execute runs the root command and reports a failure on errOut
func Execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(errOut, badStyle.Render("error: "+err.Error()))
	}
	return err
}

// openDB loads configuration and opens the database. Migrations run unless
// the caller is the migrate command itself.
func openDB(ctx context.Context, migrate bool) (*config.Config, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return cfg, db, nil
}

func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, db, err := openDB(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, db, clock.System{})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return a, func() { db.Close() }, nil
}
