package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, db, err := openDB(ctx, false)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			pending, err := db.PendingMigrations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render("Migrations"))
			fmt.Fprintln(out, labelValue("Database", cfg.DatabaseType))
			if len(pending) == 0 {
				fmt.Fprintln(out, goodStyle.Render("schema is up to date"))
				return nil
			}
			for _, name := range pending {
				fmt.Fprintln(out, "  "+mutedStyle.Render(name))
			}
			if dryRun {
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d migration(s) pending", len(pending))))
				return nil
			}

			if err := db.RunMigrations(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, goodStyle.Render(fmt.Sprintf("applied %d migration(s)", len(pending))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
