// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/volmill/volmill/internal/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show discovered, staged, completed, and pending counts",
	Long: `Status reads the three directory roots and reports what the next run
would see: archives discovered in the source tree, volumes staged, volumes
with a finished output file, and the pending remainder awaiting cleaning.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{Cfg: cfg}
	st, err := p.Status()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Discovered: %d\n", st.Discovered)
	fmt.Fprintf(out, "Staged:     %d\n", st.Staged)
	fmt.Fprintf(out, "Completed:  %d\n", st.Completed)
	fmt.Fprintf(out, "Pending:    %d\n", st.Pending)
	return nil
}
