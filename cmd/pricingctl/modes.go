package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/timmy/pricebook/internal/app"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "Manage pricing modes",
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert missing preset pricing modes",
	RunE:  runSeed,
}

var modesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the pricing modes an organization can apply",
	RunE:  runModesList,
}

var modesOrg string

func init() {
	modesListCmd.Flags().StringVar(&modesOrg, "org", "", "Organization ID (required)")
	if err := modesListCmd.MarkFlagRequired("org"); err != nil {
		panic(fmt.Sprintf("failed to mark org flag as required: %v", err))
	}

	modesCmd.AddCommand(seedCmd, modesListCmd)
	rootCmd.AddCommand(modesCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		n, err := a.Pricing.Registry().SeedPresets(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d preset(s)\n", n)
		return nil
	})
}

func runModesList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		modes, err := a.Pricing.ListModes(ctx, modesOrg)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tPRESET\tUSAGE\tWIN RATE")
		for _, m := range modes {
			rate := "-"
			if m.WinRate != nil {
				rate = fmt.Sprintf("%d%%", *m.WinRate)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n", m.ID, m.Name, m.Kind, m.IsPreset, m.UsageCount, rate)
		}
		return w.Flush()
	})
}
