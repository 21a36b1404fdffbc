// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/volmill/volmill/pkg/types"
)

// reportDoc is the YAML shape of a run report. Times are rendered as
// strings so the document reads without decoding nanosecond counts.
type reportDoc struct {
	RunID       string              `yaml:"run_id"`
	Mode        string              `yaml:"mode"`
	Force       bool                `yaml:"force,omitempty"`
	Started     string              `yaml:"started"`
	Elapsed     string              `yaml:"elapsed"`
	Discovered  int                 `yaml:"discovered"`
	AlreadyDone int                 `yaml:"already_done"`
	Expanded    int                 `yaml:"expanded"`
	Cleaned     int                 `yaml:"cleaned"`
	Failed      int                 `yaml:"failed"`
	Failures    []types.ItemFailure `yaml:"failures,omitempty"`
}

// WriteReport writes a run summary as a YAML document at path.
func WriteReport(path string, sum types.RunSummary) error {
	doc := reportDoc{
		RunID:       sum.RunID,
		Mode:        sum.Mode,
		Force:       sum.Force,
		Started:     sum.Started.UTC().Format(time.RFC3339),
		Elapsed:     sum.Elapsed.Round(time.Millisecond).String(),
		Discovered:  sum.Discovered,
		AlreadyDone: sum.AlreadyDone,
		Expanded:    sum.Expanded,
		Cleaned:     sum.Cleaned,
		Failed:      sum.Failed,
		Failures:    sum.Failures,
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}
	return nil
}
