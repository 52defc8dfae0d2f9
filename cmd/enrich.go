package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/batch"
	"github.com/referencias-work/curator-cli/internal/config"
	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/model"
	"github.com/referencias-work/curator-cli/internal/monitoring"
)

var (
	enrichMaxItems    int
	enrichBatchSize   int
	enrichConcurrency int
	enrichStrategy    string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run a batch enrichment over the item store",
}

var enrichLocationCmd = &cobra.Command{
	Use:   "location",
	Short: "Suggest city and country for unreviewed items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnrich(cmd, func(env *appEnv) batch.Job {
			return &batch.LocationJob{Finder: env.Service}
		})
	},
}

var enrichThumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Find thumbnails for items with none or a low-quality one",
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Batch.Strategy
		if cmd.Flags().Changed("strategy") {
			name = enrichStrategy
		}
		strategy, err := enrich.ParseStrategy(name)
		if err != nil {
			return err
		}
		return runEnrich(cmd, func(env *appEnv) batch.Job {
			return &batch.ThumbnailJob{
				Finder:      env.Service,
				Quality:     env.Ranker,
				Search:      strategy,
				MaxAttempts: cfg.Batch.MaxAttempts,
				RetryAfter:  time.Duration(cfg.Batch.RetryAfterHours) * time.Hour,
			}
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{enrichLocationCmd, enrichThumbnailsCmd} {
		c.Flags().IntVar(&enrichMaxItems, "max-items", 0, "stop after this many queued items, 0 for all (default from config)")
		c.Flags().IntVar(&enrichBatchSize, "batch-size", 0, "items per persisted batch (default from config)")
		c.Flags().IntVar(&enrichConcurrency, "concurrency", 0, "items in flight per batch (default from config)")
		enrichCmd.AddCommand(c)
	}
	enrichThumbnailsCmd.Flags().StringVar(&enrichStrategy, "strategy", "ladder", "search strategy: cheap, deep or ladder")
	rootCmd.AddCommand(enrichCmd)
}

// runOptions merges flags over the batch config.
func runOptions(cmd *cobra.Command) batch.Options {
	opts := batch.Options{
		BatchSize:           cfg.Batch.Size,
		Concurrency:         cfg.Batch.Concurrency,
		MaxItems:            cfg.Batch.MaxItems,
		PauseBetweenBatches: config.Ms(cfg.Batch.PauseMs),
	}
	if cmd.Flags().Changed("max-items") {
		opts.MaxItems = enrichMaxItems
	}
	if cmd.Flags().Changed("batch-size") {
		opts.BatchSize = enrichBatchSize
	}
	if cmd.Flags().Changed("concurrency") {
		opts.Concurrency = enrichConcurrency
	}
	return opts
}

func runEnrich(cmd *cobra.Command, newJob func(env *appEnv) batch.Job) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, envOptions{policy: batchPolicy(cfg.Enrich), withStore: true, withSink: true})
	if err != nil {
		return err
	}
	defer env.Close()

	runner := &batch.Runner{
		Store:    env.Store,
		Sink:     env.Sink,
		Options:  runOptions(cmd),
		Recorder: env.Metrics,
	}
	rep, runErr := runner.Run(ctx, newJob(env))

	alerter := monitoring.NewAlerter(cfg.Monitoring)
	if alerter.Enabled() {
		alerter.SendAlerts(context.WithoutCancel(ctx), alerter.Evaluate(rep, runErr))
	}

	if rep != nil {
		printSummary(cmd.OutOrStdout(), rep)
	}
	if runErr != nil {
		zap.L().Error("enrich: run failed", zap.Error(runErr))
		return runErr
	}
	return nil
}

func printSummary(w io.Writer, rep *model.Report) {
	fmt.Fprintf(w, "%s run %s\n", rep.Mode, rep.ID)
	if rep.Strategy != "" {
		fmt.Fprintf(w, "  strategy:  %s\n", rep.Strategy)
	}
	fmt.Fprintf(w, "  eligible:  %d (queued %d)\n", rep.Eligible, rep.Queued)
	fmt.Fprintf(w, "  processed: %d in %d batch(es)\n", rep.Processed, rep.Batches)
	fmt.Fprintf(w, "  updated:   %d\n", rep.Updated)
	fmt.Fprintf(w, "  skipped:   %d\n", rep.Skipped)
	fmt.Fprintf(w, "  failed:    %d\n", rep.Failed)
	if rep.Canceled {
		fmt.Fprintln(w, "  canceled before the queue was drained")
	}
	fmt.Fprintf(w, "  backup:    %s\n", rep.Backup)
}
