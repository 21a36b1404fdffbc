// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/ledger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the ledger",
	Long: `History lists recent pipeline runs recorded in the ledger database,
newest first. Use --run with a run ID to list the per-volume failures of
one run. The ledger is an audit record only; deleting it does not affect
resume behavior.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.Flags().String("run", "", "show per-volume failures for this run ID")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		failures, err := store.Failures(ctx, runID)
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			fmt.Fprintln(out, "No failures recorded for this run.")
			return nil
		}
		for _, f := range failures {
			fmt.Fprintf(out, "%-10s %-24s %s\n", f.Stage, f.ID, f.Cause)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	fmt.Fprintf(out, "%-36s  %-7s  %-20s  %9s  %5s %5s %5s %6s %5s\n",
		"RUN ID", "MODE", "STARTED", "ELAPSED", "DISC", "SKIP", "EXP", "CLEAN", "FAIL")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-7s  %-20s  %9s  %5d %5d %5d %6d %5d\n",
			r.RunID, r.Mode, r.Started.UTC().Format(time.RFC3339),
			r.Elapsed.Round(time.Second), r.Discovered, r.AlreadyDone,
			r.Expanded, r.Cleaned, r.Failed)
	}
	return nil
}
