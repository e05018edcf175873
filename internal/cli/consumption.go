package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subidb/DMS-Dashboard/internal/currency"
)

func newConsumptionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "consumption <po-id>",
		Short: "Show how much of a purchase order has been invoiced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			po, err := a.Store.Documents.GetByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("document %s: %w", args[0], err)
			}
			if !po.Category.IsPO() {
				return fmt.Errorf("document %s is a %s, not a purchase order", po.ID, po.Category)
			}

			c, err := a.Recon.Engine().CalculatePOConsumption(ctx, po)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", po.Title, po.ID)
			fmt.Fprintf(out, "  Amount:      %s\n", currency.Format(po.Amount, po.Currency))
			fmt.Fprintf(out, "  Invoiced:    %s across %d invoice(s)\n",
				currency.Format(c.TotalInvoiced, po.Currency), c.LinkedInvoiceCount)
			fmt.Fprintf(out, "  Remaining:   %s\n", currency.Format(c.RemainingBalance, po.Currency))
			fmt.Fprintf(out, "  Utilization: %.1f%%\n", c.UtilizationPercentage)
			return nil
		},
	}
}
