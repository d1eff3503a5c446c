package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"milkman/internal/core"
)

func newOverrideCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "override",
		Aliases: []string{"overrides"},
		Short:   "List and edit per-day quantities",
	}

	var month string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the overrides of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := app.monthArg(month)
			if err != nil {
				return err
			}
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				list, err := l.ListOverrides(ctx, m)
				if err != nil {
					return err
				}
				settings, err := l.GetSettings(ctx)
				if err != nil {
					return err
				}
				printOverrides(cmd, m, settings, list)
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")

	var cat1, cat2 float64
	setCmd := &cobra.Command{
		Use:   "set <YYYY-MM-DD>",
		Short: "Set a day's quantities; an omitted category keeps its effective value",
		Long: `Set a day's quantities. An omitted category keeps the value the day
currently has (its override, or the default).

Examples:
  milkmanctl override set 2023-02-10 --cat1 3
  milkmanctl override set 2023-02-11 --cat1 1 --cat2 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := core.ParseDateKey(args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("cat1") && !flags.Changed("cat2") {
				return fmt.Errorf("nothing to change: pass --cat1 or --cat2")
			}
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				o, err := effectiveOverride(ctx, l, date)
				if err != nil {
					return err
				}
				if flags.Changed("cat1") {
					o = o.With(core.Category1, cat1)
				}
				if flags.Changed("cat2") {
					o = o.With(core.Category2, cat2)
				}
				if err := l.SaveOverride(ctx, o); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %sL / %sL\n", o.Date, formatQty(o.Category1Amount), formatQty(o.Category2Amount))
				return nil
			})
		},
	}
	setCmd.Flags().Float64Var(&cat1, "cat1", 0, "Category 1 liters")
	setCmd.Flags().Float64Var(&cat2, "cat2", 0, "Category 2 liters")

	noDeliveryCmd := &cobra.Command{
		Use:   "no-delivery <YYYY-MM-DD>",
		Short: "Mark a day as no delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := core.ParseDateKey(args[0])
			if err != nil {
				return err
			}
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				if err := l.SaveOverride(ctx, core.NoDelivery(date)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no delivery\n", date)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, setCmd, noDeliveryCmd)
	return cmd
}

// effectiveOverride returns the day's current values as an override.
func effectiveOverride(ctx context.Context, l Ledger, date core.DateKey) (core.Override, error) {
	list, err := l.ListOverrides(ctx, date.Month())
	if err != nil {
		return core.Override{}, err
	}
	if o, ok := core.IndexOverrides(list)[date]; ok {
		return o, nil
	}
	s, err := l.GetSettings(ctx)
	if err != nil {
		return core.Override{}, err
	}
	return core.Override{Date: date, Category1Amount: s.DefaultCategory1, Category2Amount: s.DefaultCategory2}, nil
}

func printOverrides(cmd *cobra.Command, m core.Month, s core.Settings, list []core.Override) {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintf(out, "No overrides in %s\n", m.Label())
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tCATEGORY 1\tCATEGORY 2\tSTATUS")
	for i := range list {
		o := list[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Date, formatQty(o.Category1Amount), formatQty(o.Category2Amount), core.ClassifyDay(s, &o))
	}
	w.Flush()
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
