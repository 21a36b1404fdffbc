// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// PageSeqWidth is the zero-padded digit width of canonical page
	// filenames ("00000001.txt").
	PageSeqWidth = 8

	// PageExt is the canonical page file extension inside a staging
	// directory.
	PageExt = ".txt"

	// OutputExt is the extension of finished per-volume output files.
	OutputExt = ".txt"
)

// PathsConfig names the three directory roots every stage works against.
// They are threaded through the pipeline as values and never mutated.
type PathsConfig struct {
	// SourceRoot is the pairtree root that is walked for archives.
	SourceRoot string `json:"source_root" yaml:"source_root"`

	// StagingRoot receives one subdirectory of page files per volume.
	StagingRoot string `json:"staging_root" yaml:"staging_root"`

	// OutputRoot receives one <id>.txt file per cleaned volume.
	OutputRoot string `json:"output_root" yaml:"output_root"`
}

// LocateConfig holds settings for archive discovery.
type LocateConfig struct {
	// ArchiveExt is the archive extension to select, matched
	// case-sensitively (default ".zip").
	ArchiveExt string `json:"archive_ext" yaml:"archive_ext"`
}

// WorkersConfig bounds the per-stage worker pools.
type WorkersConfig struct {
	// Extract is the number of concurrent archive expansions (default 4,
	// bounded by disk I/O rather than CPU).
	Extract int `json:"extract" yaml:"extract"`

	// Clean is the number of concurrent volume cleanings (default NumCPU).
	Clean int `json:"clean" yaml:"clean"`
}

// AnalyzerBackend identifies the page-structure analyzer implementation.
type AnalyzerBackend string

const (
	// AnalyzerRepeat is the built-in exact-repetition baseline.
	AnalyzerRepeat AnalyzerBackend = "repeat"

	// AnalyzerHTTP delegates to a remote analyzer service.
	AnalyzerHTTP AnalyzerBackend = "http"

	// AnalyzerContainer pipes volumes through a local analyzer image.
	AnalyzerContainer AnalyzerBackend = "container"
)

// AnalyzerConfig holds settings for the page-structure analyzer boundary.
type AnalyzerConfig struct {
	// Backend selects the analyzer implementation: repeat, http, or
	// container.
	Backend AnalyzerBackend `json:"backend" yaml:"backend"`

	// URL is the analyze endpoint of the remote service (http backend).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// TokenFile is an optional path to a file holding the bearer token
	// sent to the remote service (http backend).
	TokenFile string `json:"token_file,omitempty" yaml:"token_file,omitempty"`

	// Timeout bounds one analyzer call (default 5m; a volume can carry
	// upwards of a thousand pages).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MinRepeat is the number of pages a line must recur on, at the same
	// position, before the repeat backend strips it (default 3).
	MinRepeat int `json:"min_repeat" yaml:"min_repeat"`

	// Window is how many lines from the top and bottom of a page the
	// repeat backend inspects (default 3).
	Window int `json:"window" yaml:"window"`

	// Image is the analyzer container image (container backend).
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// CleanConfig holds settings for output assembly.
type CleanConfig struct {
	// Terminator is appended after each page body in the output file
	// (default "\n").
	Terminator string `json:"terminator" yaml:"terminator"`
}

// LedgerConfig holds settings for the run-history ledger. The ledger is an
// audit record only; resume decisions never read it.
type LedgerConfig struct {
	// Path is the SQLite database location. Empty means
	// <staging_root>/.index/volmill.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Disabled turns ledger writes off entirely.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// WatchConfig holds settings for continuous ingest.
type WatchConfig struct {
	// Debounce is the quiet period after a filesystem event before a
	// pass starts, long enough for an in-progress copy to settle
	// (default 2s).
	Debounce time.Duration `json:"debounce" yaml:"debounce"`

	// Sweep is the interval between unconditional passes, catching
	// anything the watcher missed (default 5m).
	Sweep time.Duration `json:"sweep" yaml:"sweep"`
}

// MetricsConfig holds settings for the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (e.g. ":9090"). Empty
	// disables the endpoint; collectors still feed the run summary.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Config groups all pipeline settings.
type Config struct {
	Paths    PathsConfig    `json:"paths" yaml:"paths"`
	Locate   LocateConfig   `json:"locate" yaml:"locate"`
	Workers  WorkersConfig  `json:"workers" yaml:"workers"`
	Analyzer AnalyzerConfig `json:"analyzer" yaml:"analyzer"`
	Clean    CleanConfig    `json:"clean" yaml:"clean"`
	Watch    WatchConfig    `json:"watch" yaml:"watch"`
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`

	// Force reprocesses every discovered volume, ignoring existing output
	// files. Default is resume-only: completed volumes are skipped.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
}

// DefaultConfig returns the settings used when a field is left unset.
func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			SourceRoot:  "source",
			StagingRoot: "staging",
			OutputRoot:  "output",
		},
		Locate: LocateConfig{ArchiveExt: ".zip"},
		Workers: WorkersConfig{
			Extract: 4,
			Clean:   runtime.NumCPU(),
		},
		Analyzer: AnalyzerConfig{
			Backend:   AnalyzerRepeat,
			Timeout:   5 * time.Minute,
			MinRepeat: 3,
			Window:    3,
		},
		Clean: CleanConfig{Terminator: "\n"},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
			Sweep:    5 * time.Minute,
		},
	}
}

// ApplyDefaults fills zero-valued fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Paths.SourceRoot == "" {
		c.Paths.SourceRoot = d.Paths.SourceRoot
	}
	if c.Paths.StagingRoot == "" {
		c.Paths.StagingRoot = d.Paths.StagingRoot
	}
	if c.Paths.OutputRoot == "" {
		c.Paths.OutputRoot = d.Paths.OutputRoot
	}
	if c.Locate.ArchiveExt == "" {
		c.Locate.ArchiveExt = d.Locate.ArchiveExt
	}
	if c.Workers.Extract <= 0 {
		c.Workers.Extract = d.Workers.Extract
	}
	if c.Workers.Clean <= 0 {
		c.Workers.Clean = d.Workers.Clean
	}
	if c.Analyzer.Backend == "" {
		c.Analyzer.Backend = d.Analyzer.Backend
	}
	if c.Analyzer.Timeout <= 0 {
		c.Analyzer.Timeout = d.Analyzer.Timeout
	}
	if c.Analyzer.MinRepeat <= 0 {
		c.Analyzer.MinRepeat = d.Analyzer.MinRepeat
	}
	if c.Analyzer.Window <= 0 {
		c.Analyzer.Window = d.Analyzer.Window
	}
	if c.Clean.Terminator == "" {
		c.Clean.Terminator = d.Clean.Terminator
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = d.Watch.Debounce
	}
	if c.Watch.Sweep <= 0 {
		c.Watch.Sweep = d.Watch.Sweep
	}
}

// Validate ensures the configuration is coherent before a run starts.
func (c *Config) Validate() error {
	if c.Paths.SourceRoot == "" {
		return fmt.Errorf("source root cannot be empty")
	}
	if c.Paths.StagingRoot == "" {
		return fmt.Errorf("staging root cannot be empty")
	}
	if c.Paths.OutputRoot == "" {
		return fmt.Errorf("output root cannot be empty")
	}
	if c.Locate.ArchiveExt == "" || c.Locate.ArchiveExt[0] != '.' {
		return fmt.Errorf("archive extension must begin with a dot, got %q", c.Locate.ArchiveExt)
	}
	if c.Workers.Extract <= 0 {
		return fmt.Errorf("extract workers must be positive")
	}
	if c.Workers.Clean <= 0 {
		return fmt.Errorf("clean workers must be positive")
	}
	switch c.Analyzer.Backend {
	case AnalyzerRepeat:
	case AnalyzerHTTP:
		if c.Analyzer.URL == "" {
			return fmt.Errorf("analyzer url required for the http backend")
		}
	case AnalyzerContainer:
		if c.Analyzer.Image == "" {
			return fmt.Errorf("analyzer image required for the container backend")
		}
	default:
		return fmt.Errorf("unknown analyzer backend %q", c.Analyzer.Backend)
	}
	if c.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer timeout must be positive")
	}
	if c.Analyzer.MinRepeat < 2 {
		return fmt.Errorf("analyzer min_repeat must be at least 2")
	}
	if c.Analyzer.Window <= 0 {
		return fmt.Errorf("analyzer window must be positive")
	}
	if c.Watch.Debounce <= 0 || c.Watch.Sweep <= 0 {
		return fmt.Errorf("watch debounce and sweep must be positive")
	}
	return nil
}

// LedgerPath resolves the ledger location, defaulting to a hidden .index
// directory under the staging root so directory listings never see it.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Paths.StagingRoot, ".index", "volmill.db")
}
