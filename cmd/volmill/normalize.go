// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/normalize"
	"github.com/volmill/volmill/internal/resume"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [id ...]",
	Short: "Repair page numbering in staging directories",
	Long: `Normalize renames page files in staging directories to the canonical
contiguous zero-padded form: identifier prefixes are stripped and numbering
gaps closed, preserving lexicographic order. Already-normal volumes are
verified and left untouched, so normalizing is always safe to repeat.

With no arguments every staged volume is normalized; otherwise only the
given identifiers.`,
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ids := args
	if len(ids) == 0 {
		ids, err = resume.Staged(cfg.Paths.StagingRoot)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, id := range ids {
		renamed, err := normalize.Normalize(filepath.Join(cfg.Paths.StagingRoot, id))
		if err != nil {
			failed++
			fmt.Fprintf(out, "failed:  %s (%v)\n", id, err)
			continue
		}
		fmt.Fprintf(out, "normalized: %s (%d renames)\n", id, renamed)
	}

	fmt.Fprintf(out, "\nBatch summary: %d normalized, %d failed (total: %d)\n",
		len(ids)-failed, failed, len(ids))
	if failed > 0 {
		return fmt.Errorf("%d volume(s) failed normalization", failed)
	}
	return nil
}
