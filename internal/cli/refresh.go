package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefreshCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild all unacknowledged alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Recon.RefreshAllAlerts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d alerts\n", n)
			return nil
		},
	}
}
