package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/museumatlas/curator/internal/drift"
	"github.com/museumatlas/curator/internal/model"
)

var driftPartition string

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Check the record store against the gold set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.GoldSet.Path == "" {
			return eris.New("gold_set.path is required for drift checks")
		}
		gold, err := drift.LoadGoldSet(cfg.GoldSet.Path)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		partitions := []string{driftPartition}
		if driftPartition == "" {
			partitions, err = st.ListPartitions(ctx)
			if err != nil {
				return eris.Wrap(err, "list partitions")
			}
		}

		records := make(map[string]*model.Museum)
		for _, partition := range partitions {
			recs, err := st.LoadPartition(ctx, partition)
			if err != nil {
				return eris.Wrapf(err, "load partition %s", partition)
			}
			for _, m := range recs {
				records[m.ID] = m
			}
		}

		report := drift.Check(records, gold, cfg.Thresholds.DriftRate)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}

		if report.Exceeded {
			return eris.Errorf("drift rate %.4f exceeds threshold %.4f", report.DriftRate, report.Threshold)
		}
		return nil
	},
}

func init() {
	driftCmd.Flags().StringVar(&driftPartition, "partition", "", "partition to check (default: all)")
	rootCmd.AddCommand(driftCmd)
}
