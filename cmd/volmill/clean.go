package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean staged volumes into the output directory",
	Long: `Clean processes every staged volume without an output file: pages are
re-verified, the analyzer strips running headers and footers, and the
cleaned bodies are concatenated into <output>/<id>.txt via an atomic
rename. The source tree is never touched. Use --force to also reprocess
volumes that already have an output file.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
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

	sum, err := p.CleanOnly(ctx)
	if err != nil {
		return err
	}
	if sum.HasFailures() {
		return fmt.Errorf("%d volume(s) failed cleaning", sum.Failed)
	}
	return nil
}
