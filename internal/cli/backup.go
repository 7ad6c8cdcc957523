package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"habitheroes/internal/clock"
	"habitheroes/internal/service"
)

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the database to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := openDB(ctx, true)
			if err != nil {
				return err
			}
			defer db.Close()

			// Generate default filename if not provided
			if output == "" {
				output = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
			}
			if dir := filepath.Dir(output); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			backup, err := service.NewBackupService(db, clock.System{}).Export(ctx, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				os.Remove(output)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Export complete"))
			fmt.Fprintln(out, labelValue("File", output))
			printCounts(out, backup)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path (default: backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		input     string
		clearData bool
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON backup into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("failed to open backup: %w", err)
			}
			defer f.Close()

			if clearData && !yes {
				fmt.Fprint(out, warnStyle.Render("This will delete all existing data. Type 'yes' to confirm: "))
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					fmt.Fprintln(out, mutedStyle.Render("import cancelled"))
					return nil
				}
			}

			_, db, err := openDB(ctx, true)
			if err != nil {
				return err
			}
			defer db.Close()

			backup, err := service.NewBackupService(db, clock.System{}).Import(ctx, f, clearData)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, titleStyle.Render("Import complete"))
			fmt.Fprintln(out, labelValue("Exported at", backup.ExportedAt.Format(time.RFC3339)))
			printCounts(out, backup)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "backup file to import")
	cmd.Flags().BoolVar(&clearData, "clear", false, "delete existing data before importing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt for --clear")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func printCounts(out io.Writer, backup *service.BackupData) {
	tables := make([]string, 0, len(backup.Tables))
	for name := range backup.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	for _, name := range tables {
		fmt.Fprintf(out, "  %-22s %s\n", name, mutedStyle.Render(fmt.Sprintf("%d row(s)", backup.Count(name))))
	}
}
