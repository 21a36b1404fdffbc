// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: locate, expand, clean",
	Long: `Run discovers eligible archives under the source tree, expands the ones
without an existing output file into normalized staging directories, then
cleans every pending staged volume into the output directory.

Per-volume failures are reported and counted but never stop the batch; the
command exits non-zero when any volume failed so a rerun can pick up the
remainder.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("report", "", "write a YAML run report to this path")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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

	sum, runErr := p.Run(ctx)

	// The report is written even for aborted runs so the partial counts
	// are not lost.
	if report, _ := cmd.Flags().GetString("report"); report != "" {
		if err := pipeline.WriteReport(report, sum); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if sum.HasFailures() {
		return fmt.Errorf("%d volume(s) failed", sum.Failed)
	}
	return nil
}
