// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Volume holds identity and file locations for one digitized item as it
// moves through the pipeline: one source archive, one staging directory of
// page files, one output text file.
type Volume struct {
	// ID is the stable identifier derived from the archive basename
	// (e.g. "mdp.39015012345678").
	ID string `json:"id" yaml:"id"`

	// ArchivePath is the source archive location. Empty once the archive
	// has been consumed by a successful expansion.
	ArchivePath string `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`

	// StagingDir is the directory holding the volume's page files.
	StagingDir string `json:"staging_dir" yaml:"staging_dir"`

	// PageCount is the number of page files staged for the volume.
	PageCount int `json:"page_count" yaml:"page_count"`
}

// Page is one physical page of a volume. Identity is positional: Seq is the
// page's 1-based rank within the volume, never a number embedded in a
// source filename.
type Page struct {
	// Seq is the 1-based sequence number of the page.
	Seq int `json:"seq" yaml:"seq"`

	// Lines are the page's raw text lines in source order.
	Lines []string `json:"lines" yaml:"lines"`
}

// PageResult is the analyzer's output for one page: the page body with
// running headers and footers removed.
type PageResult struct {
	// Seq echoes the sequence number of the analyzed page.
	Seq int `json:"seq" yaml:"seq"`

	// Body is the cleaned page text.
	Body string `json:"body" yaml:"body"`
}
