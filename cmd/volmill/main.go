// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the volmill CLI. Each pipeline stage
// is a subcommand: locate, expand, clean, and the combined run, plus
// normalize for staging repairs, status, history, and the continuous watch
// mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/volmill/volmill/internal/ledger"
	"github.com/volmill/volmill/internal/metrics"
	"github.com/volmill/volmill/internal/pipeline"
	"github.com/volmill/volmill/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the volmill CLI.
var rootCmd = &cobra.Command{
	Use:   "volmill",
	Short: "Batch pipeline for cleaning digitized volume text",
	Long: `volmill ingests a tree of zipped page-per-file volumes, stages each as a
directory of normalized page files, strips running headers and footers
through a pluggable page-structure analyzer, and writes one concatenated
text file per volume.

State lives entirely in the filesystem: completed volumes are skipped,
interrupted staging is repaired, and rerunning after a failure processes
exactly the remainder.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(verbose)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./volmill.yaml or ~/.config/volmill/volmill.yaml)")
	pf.Bool("verbose", false, "enable debug logging")
	pf.String("source", "source", "tree scanned for volume archives")
	pf.String("staging", "staging", "directory receiving expanded page files")
	pf.String("output", "output", "directory receiving cleaned volume text")
	pf.Bool("force", false, "reprocess volumes whose output already exists")
	pf.Int("extract-workers", 0, "concurrent archive expansions (default 4)")
	pf.Int("clean-workers", 0, "concurrent volume cleanings (default: number of CPUs)")
	pf.String("analyzer", "", "analyzer backend: repeat, http, or container")
	pf.String("analyzer-url", "", "analyze endpoint for the http backend")
	pf.String("analyzer-token-file", "", "file holding the bearer token for the http backend")
	pf.String("analyzer-image", "", "analyzer image for the container backend")
	pf.String("metrics-addr", "", "Prometheus listen address, e.g. :9090 (empty disables)")
	pf.Bool("no-ledger", false, "skip recording runs in the history ledger")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("volmill")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "volmill"))
		}
	}

	viper.SetEnvPrefix("VOLMILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setupLogging installs the default logger: text on a terminal, JSON when
// piped, debug level with --verbose. Logs go to stderr so per-volume status
// lines own stdout.
func setupLogging(verbose bool) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// loadConfig resolves the effective configuration: config file and
// environment through viper, overridden by any flag set on the command
// line, then defaults and validation.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	var cfg types.Config
	err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return cfg, fmt.Errorf("parsing configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Paths.SourceRoot, _ = flags.GetString("source")
	}
	if flags.Changed("staging") {
		cfg.Paths.StagingRoot, _ = flags.GetString("staging")
	}
	if flags.Changed("output") {
		cfg.Paths.OutputRoot, _ = flags.GetString("output")
	}
	if flags.Changed("force") {
		cfg.Force, _ = flags.GetBool("force")
	}
	if flags.Changed("extract-workers") {
		cfg.Workers.Extract, _ = flags.GetInt("extract-workers")
	}
	if flags.Changed("clean-workers") {
		cfg.Workers.Clean, _ = flags.GetInt("clean-workers")
	}
	if flags.Changed("analyzer") {
		backend, _ := flags.GetString("analyzer")
		cfg.Analyzer.Backend = types.AnalyzerBackend(backend)
	}
	if flags.Changed("analyzer-url") {
		cfg.Analyzer.URL, _ = flags.GetString("analyzer-url")
	}
	if flags.Changed("analyzer-token-file") {
		cfg.Analyzer.TokenFile, _ = flags.GetString("analyzer-token-file")
	}
	if flags.Changed("analyzer-image") {
		cfg.Analyzer.Image, _ = flags.GetString("analyzer-image")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("no-ledger") {
		cfg.Ledger.Disabled, _ = flags.GetBool("no-ledger")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildPipeline assembles a pipeline with metrics and, unless disabled, the
// run ledger. The returned cleanup shuts the metrics endpoint down and
// closes the ledger.
func buildPipeline(cfg types.Config) (*pipeline.Pipeline, func(), error) {
	p := &pipeline.Pipeline{Cfg: cfg, Out: os.Stdout, Metrics: metrics.New()}
	var cleanups []func()

	if !cfg.Ledger.Disabled {
		store, err := ledger.Open(cfg.LedgerPath())
		if err != nil {
			return nil, nil, err
		}
		p.Ledger = store
		cleanups = append(cleanups, func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing ledger", "error", err)
			}
		})
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.Metrics.Addr,
			Handler: promhttp.HandlerFor(p.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		slog.Info("metrics server listening", "addr", cfg.Metrics.Addr)
		cleanups = append(cleanups, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown", "error", err)
			}
		})
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return p, cleanup, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM. In-flight
// volumes finish; no new work starts after cancellation.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
