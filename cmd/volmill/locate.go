package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/locate"
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "List eligible archives without processing them",
	Long: `Locate walks the source tree and prints the path of every archive a run
would process: hidden files, foreign extensions, and duplicate-copy stems
are excluded. Nothing is modified.`,
	RunE: runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	count := 0
	err = locate.Walk(cfg.Paths.SourceRoot, cfg.Locate, func(path string) error {
		count++
		fmt.Fprintln(out, path)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d archive(s)\n", count)
	return nil
}
