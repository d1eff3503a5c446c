package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"milkman/internal/core"
)

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the rate and default quantities",
	}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				s, err := l.GetSettings(ctx)
				if err != nil {
					return err
				}
				printSettings(cmd, s)
				return nil
			})
		},
	}

	var rate, cat1, cat2 float64
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Replace settings; omitted flags keep their current value",
		Long: `Replace settings. Omitted flags keep their current value.

Examples:
  milkmanctl settings set --rate 62
  milkmanctl settings set --cat1 1.5 --cat2 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("rate") && !flags.Changed("cat1") && !flags.Changed("cat2") {
				return fmt.Errorf("nothing to change: pass --rate, --cat1 or --cat2")
			}
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				s, err := l.GetSettings(ctx)
				if err != nil {
					return err
				}
				if flags.Changed("rate") {
					s.GlobalRate = rate
				}
				if flags.Changed("cat1") {
					s.DefaultCategory1 = cat1
				}
				if flags.Changed("cat2") {
					s.DefaultCategory2 = cat2
				}
				if err := l.SaveSettings(ctx, s); err != nil {
					return err
				}
				printSettings(cmd, s)
				return nil
			})
		},
	}
	setCmd.Flags().Float64Var(&rate, "rate", 0, "Price per liter")
	setCmd.Flags().Float64Var(&cat1, "cat1", 0, "Default category 1 liters per day")
	setCmd.Flags().Float64Var(&cat2, "cat2", 0, "Default category 2 liters per day")

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}

func printSettings(cmd *cobra.Command, s core.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rate:               Rs%s/L\n", formatQty(s.GlobalRate))
	fmt.Fprintf(out, "Default category 1: %sL\n", formatQty(s.DefaultCategory1))
	fmt.Fprintf(out, "Default category 2: %sL\n", formatQty(s.DefaultCategory2))
}
