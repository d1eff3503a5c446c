package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"milkman/internal/core"
)

func newBillCmd(app *App) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "bill",
		Short: "Show the bill for a month",
		Long: `Show the bill for a month.

Examples:
  milkmanctl bill                  # current month
  milkmanctl bill --month 2023-02`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := app.monthArg(month)
			if err != nil {
				return err
			}
			return app.withLedger(cmd, func(ctx context.Context, l Ledger) error {
				bill, err := l.MonthBill(ctx, m)
				if err != nil {
					return err
				}
				printBill(cmd, bill)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "Month as YYYY-MM (default: current month)")
	return cmd
}

func printBill(cmd *cobra.Command, b core.Bill) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Bill for %s (rate Rs%s/L)\n\n", b.Month.Label(), core.FormatMoney(b.Rate))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tLITERS\tACTIVE DAYS\tAMOUNT")
	for _, c := range []core.Category{core.Category1, core.Category2} {
		cb := b.For(c)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c, core.FormatLiters(cb.TotalLiters), cb.ActiveDays, core.FormatMoney(cb.TotalAmount))
	}
	fmt.Fprintf(w, "TOTAL\t\t\t%s\n", core.FormatMoney(b.Total()))
	w.Flush()
}
