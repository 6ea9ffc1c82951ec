package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/museumatlas/curator/internal/model"
	"github.com/museumatlas/curator/internal/store"
)

var (
	runsStatus    string
	runsPartition string
	runsLimit     int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded enrichment runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(runsStatus),
			Partition: runsPartition,
			Limit:     runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by terminal status")
	runsCmd.Flags().StringVar(&runsPartition, "partition", "", "filter by partition")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to return")
	rootCmd.AddCommand(runsCmd)
}
