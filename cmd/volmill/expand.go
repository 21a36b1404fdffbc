package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Locate archives and expand them into staging",
	Long: `Expand discovers eligible archives under the source tree and unpacks each
into a staging directory of normalized page files, deleting the archive once
its contents are verified on disk. Volumes with an existing output file are
skipped unless --force is given. No cleaning happens; run "volmill clean"
afterwards or use "volmill run" for the full pipeline.`,
	RunE: runExpand,
}

func init() {
	rootCmd.AddCommand(expandCmd)
}

func runExpand(cmd *cobra.Command, args []string) error {
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

	sum, err := p.ExpandOnly(ctx)
	if err != nil {
		return err
	}
	if sum.HasFailures() {
		return fmt.Errorf("%d archive(s) failed expansion", sum.Failed)
	}
	return nil
}
