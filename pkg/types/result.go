// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ItemFailure records one volume that failed a pipeline stage. Cause is the
// rendered error so the record can travel to the ledger and run report.
type ItemFailure struct {
	// ID is the volume identifier.
	ID string `json:"id" yaml:"id"`

	// Stage names the stage that failed: extract, normalize, analyze,
	// write, or other.
	Stage string `json:"stage" yaml:"stage"`

	// Cause is the failure message.
	Cause string `json:"cause" yaml:"cause"`
}

// RunSummary aggregates one pipeline run for the console summary, the run
// report, and the ledger.
type RunSummary struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id" yaml:"run_id"`

	// Mode is the entry point: run, expand, clean, or watch.
	Mode string `json:"mode" yaml:"mode"`

	// Force records whether completed volumes were reprocessed.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Discovered is the number of eligible archives found under the
	// source root.
	Discovered int `json:"discovered" yaml:"discovered"`

	// AlreadyDone is the number of volumes whose output file existed
	// before the run started.
	AlreadyDone int `json:"already_done" yaml:"already_done"`

	// Expanded is the number of archives successfully moved and unpacked.
	Expanded int `json:"expanded" yaml:"expanded"`

	// Cleaned is the number of volumes successfully written to the
	// output root.
	Cleaned int `json:"cleaned" yaml:"cleaned"`

	// Failed is the number of volumes that failed any stage.
	Failed int `json:"failed" yaml:"failed"`

	// Failures lists the failed volumes with stage and cause.
	Failures []ItemFailure `json:"failures,omitempty" yaml:"failures,omitempty"`

	// Started is when the run began.
	Started time.Time `json:"started" yaml:"started"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// HasFailures reports whether any volume failed during the run.
func (s RunSummary) HasFailures() bool {
	return s.Failed > 0
}
