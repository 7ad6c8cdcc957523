package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"habitheroes/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show the bundled starter habits and shop items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Starter habits"))
			for _, h := range cat.MasterHabits {
				fmt.Fprintf(out, "  %s %s %s\n", h.Icon, h.Name, mutedStyle.Render(fmt.Sprintf("%d XP", h.XPReward)))
			}
			printItems(out, "Avatars", cat.Avatars)
			printItems(out, "Gear", cat.Gear)
			return nil
		},
	}
}

func printItems(out io.Writer, title string, items []catalog.Item) {
	fmt.Fprintln(out, titleStyle.Render(title))
	for _, item := range items {
		cost := mutedStyle.Render(fmt.Sprintf("%d pts", item.Cost))
		if item.Cost == 0 {
			cost = goodStyle.Render("free")
		}
		fmt.Fprintf(out, "  %-18s %s %s\n", item.ID, item.Name, cost)
	}
}
