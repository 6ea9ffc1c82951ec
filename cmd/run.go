package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runPartition string
	runDryRun    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an enrichment pass over a single partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, runDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Orchestrator.Run(ctx, runPartition)
		if err != nil {
			return eris.Wrapf(err, "run partition %s", runPartition)
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Status)),
			zap.Float64("spent_usd", env.Budget.Spent()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runPartition, "partition", "", "partition to process (required)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute changes without writing")
	_ = runCmd.MarkFlagRequired("partition")
	rootCmd.AddCommand(runCmd)
}
