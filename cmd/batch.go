package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/museumatlas/curator/internal/pipeline"
)

var (
	batchPartitions  []string
	batchConcurrency int
	batchDryRun      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run enrichment over every partition",
	Long:  "Runs partitions concurrently against a shared budget. The single-writer contract holds per partition; parallelism is only across partitions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, batchDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		partitions := batchPartitions
		if len(partitions) == 0 {
			partitions, err = env.Store.ListPartitions(ctx)
			if err != nil {
				return eris.Wrap(err, "list partitions")
			}
		}
		if len(partitions) == 0 {
			zap.L().Info("no partitions to process")
			return nil
		}

		zap.L().Info("processing batch",
			zap.Int("partitions", len(partitions)),
			zap.Int("concurrency", batchConcurrency),
		)

		var mu sync.Mutex
		results := make(map[string]*pipeline.Result, len(partitions))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchConcurrency)
		for _, partition := range partitions {
			g.Go(func() error {
				res, runErr := env.Orchestrator.Run(gctx, partition)
				if runErr != nil {
					zap.L().Error("partition run failed",
						zap.String("partition", partition),
						zap.Error(runErr),
					)
					return runErr
				}
				mu.Lock()
				results[partition] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch")
		}

		zap.L().Info("batch complete",
			zap.Int("partitions", len(results)),
			zap.Float64("spent_usd", env.Budget.Spent()),
			zap.Float64("remaining_usd", env.Budget.Remaining()),
		)

		type line struct {
			Partition string `json:"partition"`
			RunID     string `json:"run_id"`
			Status    string `json:"status"`
		}
		out := make([]line, 0, len(results))
		for _, partition := range partitions {
			if res, ok := results[partition]; ok {
				out = append(out, line{Partition: partition, RunID: res.RunID, Status: string(res.Status)})
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchPartitions, "partitions", nil, "partitions to process (default: all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "max partitions in flight")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "compute changes without writing")
	rootCmd.AddCommand(batchCmd)
}
