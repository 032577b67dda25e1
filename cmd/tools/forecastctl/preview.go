package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/soltixdb/forecaster/internal/preprocess"
	"github.com/spf13/cobra"
)

// previewCmd prints the columns, time-column candidates and first rows of a CSV
func previewCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "preview <file.csv>",
		Short: "Show columns, detected time columns and the first rows of a CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			preview, err := preprocess.Analyze(f)
			if err != nil {
				return fmt.Errorf("failed to analyze %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(preview)
			}

			fmt.Fprintf(out, "Columns: %s\n", strings.Join(preview.Columns, ", "))
			fmt.Fprintf(out, "Time column candidates:\n")
			if len(preview.TimeCandidates) == 0 {
				fmt.Fprintf(out, "  (none)\n")
			}
			for _, tc := range preview.TimeCandidates {
				fmt.Fprintf(out, "  %-20s %.2f\n", tc.Column, tc.Score)
			}
			fmt.Fprintf(out, "\nFirst %d rows:\n", len(preview.Preview))
			fmt.Fprintf(out, "  %s\n", strings.Join(preview.Columns, " | "))
			for _, row := range preview.Preview {
				values := make([]string, len(preview.Columns))
				for i, col := range preview.Columns {
					values[i] = row[col]
				}
				fmt.Fprintf(out, "  %s\n", strings.Join(values, " | "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the preview as JSON")
	return cmd
}
