// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source tree and process archives as they arrive",
	Long: `Watch runs the pipeline continuously: filesystem notifications on the
source tree trigger a debounced pass, and a periodic sweep catches anything
the notifications missed. Every pass is a normal idempotent run, so volumes
that failed are retried on the next trigger and completed volumes are
skipped. Stop with SIGINT or SIGTERM.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	w := &watch.Watcher{
		Root:     cfg.Paths.SourceRoot,
		Ext:      cfg.Locate.ArchiveExt,
		Debounce: cfg.Watch.Debounce,
		Sweep:    cfg.Watch.Sweep,
		Pass: func(ctx context.Context) error {
			sum, err := p.Run(ctx)
			if err != nil {
				return err
			}
			// Per-volume failures are already logged and will be retried
			// on the next pass; only structural errors stop the watcher.
			if sum.HasFailures() {
				slog.Warn("pass finished with failures", "run_id", sum.RunID, "failed", sum.Failed)
			}
			return nil
		},
	}

	slog.Info("watching source tree", "root", cfg.Paths.SourceRoot,
		"debounce", cfg.Watch.Debounce, "sweep", cfg.Watch.Sweep)
	return w.Run(ctx)
}
