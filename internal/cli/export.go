package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/subidb/DMS-Dashboard/internal/report"
	"github.com/subidb/DMS-Dashboard/internal/repository"
)

func newExportCmd(g *globalFlags) *cobra.Command {
	var out string
	var all bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write alerts to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := repository.AlertFilter{Limit: 100000}
			if !all {
				open := false
				filter.Acknowledged = &open
			}
			alerts, _, err := a.Store.Alerts.List(ctx, filter)
			if err != nil {
				return err
			}
			docs, err := a.Store.Documents.ForAlerts(ctx, alerts)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := report.WriteAlerts(f, alerts, docs); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d alerts to %s\n", len(alerts), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "alerts.xlsx", "output file")
	cmd.Flags().BoolVar(&all, "all", false, "include acknowledged alerts")
	return cmd
}
