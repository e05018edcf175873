package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest extracted documents from a JSON or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if format == "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			}

			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Ingestion.IngestFile(cmd.Context(), data, format)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingested:   %d\n", res.Ingested)
			fmt.Fprintf(out, "Duplicates: %d\n", res.Duplicates)
			fmt.Fprintf(out, "Alerts:     %d\n", res.AlertsCreated)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "json or csv (default: from file extension)")
	return cmd
}
