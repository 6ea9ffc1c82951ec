package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/museumatlas/curator/internal/model"
)

var scorePartition string

// scoreCmd recomputes stored priority scores without any external calls,
// for after review-queue approvals have changed the scored fields.
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute priority scores from stored fields",
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

		partitions := []string{scorePartition}
		if scorePartition == "" {
			partitions, err = st.ListPartitions(ctx)
			if err != nil {
				return eris.Wrap(err, "list partitions")
			}
		}

		for _, partition := range partitions {
			records, err := st.LoadPartition(ctx, partition)
			if err != nil {
				return eris.Wrapf(err, "load partition %s", partition)
			}

			siblings := make(map[string]int)
			for _, m := range records {
				if m.Locality != "" {
					siblings[m.Locality]++
				}
			}

			scored := 0
			for _, m := range records {
				m.PriorityScore = model.PriorityFor(m, siblings[m.Locality])
				if m.PriorityScore != nil {
					scored++
				}
			}

			if err := st.SavePartition(ctx, partition, records); err != nil {
				return eris.Wrapf(err, "save partition %s", partition)
			}

			zap.L().Info("partition rescored",
				zap.String("partition", partition),
				zap.Int("records", len(records)),
				zap.Int("scored", scored),
			)
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scorePartition, "partition", "", "partition to rescore (default: all)")
	rootCmd.AddCommand(scoreCmd)
}
