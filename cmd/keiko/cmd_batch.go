package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/keiko-bench/keiko/internal/store"
	"github.com/spf13/cobra"
)

func newBatchCommand() *cobra.Command {
	var (
		batchResultsDir string
		batchDBPath     string
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "batch <batch-id>",
		Short: "Show a recorded batch and its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchDBPath == "" {
				batchDBPath = filepath.Join(batchResultsDir, "keiko.db")
			}

			st, err := store.Open(batchDBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			details, err := st.GetBatchDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(details)
			}

			printBatchSummary(cmd, st, details.Batch)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchResultsDir, "results-dir", "results", "Directory holding the results database")
	cmd.Flags().StringVar(&batchDBPath, "db", "", "Path to the sqlite database (default: <results-dir>/keiko.db)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full batch record as JSON")

	return cmd
}
