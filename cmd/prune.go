package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired source cache entries",
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

		n, err := st.DeleteExpiredLookups(ctx)
		if err != nil {
			return eris.Wrap(err, "prune cache")
		}

		zap.L().Info("cache pruned", zap.Int("deleted", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
