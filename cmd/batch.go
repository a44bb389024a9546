package main

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimcheck/internal/pipeline"
)

var (
	batchConcurrency int
	batchLocation    string
	batchDerive      bool
	batchMetricsOut  string
)

var batchCmd = &cobra.Command{
	Use:   "batch <files...>",
	Short: "Extract (and optionally validate) many documents concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, batchDerive)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentDocuments
		}

		var claim *pipeline.Claim
		if batchDerive {
			claim = &pipeline.Claim{Location: batchLocation, Derive: true}
		}

		items := env.Runner.RunBatch(ctx, args, openDocument, claim, concurrency)

		if batchMetricsOut != "" {
			if err := prometheus.WriteToTextfile(batchMetricsOut, env.Registry); err != nil {
				zap.L().Warn("batch: write metrics", zap.String("path", batchMetricsOut), zap.Error(err))
			}
		}
		if err := writeJSON(cmd.OutOrStdout(), items); err != nil {
			return err
		}

		failed := 0
		for _, it := range items {
			if it.Err != "" {
				failed++
			}
		}
		if failed == len(items) {
			return eris.Errorf("batch: all %d documents failed", failed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "documents processed at once (defaults to batch.max_concurrent_documents)")
	batchCmd.Flags().StringVar(&batchLocation, "location", "", "location context for derived concepts")
	batchCmd.Flags().BoolVar(&batchDerive, "derive", false, "derive and validate concepts for each document")
	batchCmd.Flags().StringVar(&batchMetricsOut, "metrics-out", "", "write prometheus metrics in text format to this file")
	rootCmd.AddCommand(batchCmd)
}
