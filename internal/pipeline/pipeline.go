// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the stages of a volmill run: locate source
// archives, expand them into staging, and clean staged volumes into the
// output root. Stages share nothing but the filesystem, so every entry
// point is idempotent and a rerun resumes where the last run stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/volmill/volmill/internal/analyzer"
	"github.com/volmill/volmill/internal/clean"
	"github.com/volmill/volmill/internal/expand"
	"github.com/volmill/volmill/internal/ledger"
	"github.com/volmill/volmill/internal/locate"
	"github.com/volmill/volmill/internal/metrics"
	"github.com/volmill/volmill/internal/resume"
	"github.com/volmill/volmill/pkg/types"
)

// Pipeline wires the stages of a run together. Metrics and Ledger are
// optional; leave them nil to disable collection and run auditing.
type Pipeline struct {
	Cfg     types.Config
	Out     io.Writer
	Metrics *metrics.Metrics
	Ledger  *ledger.Store
}

// Run executes the full pipeline: discover archives, expand the ones not
// already completed, then clean every pending staged volume. Per-volume
// failures are recorded in the summary; only structural errors (missing
// source root, disk full) are returned.
func (p *Pipeline) Run(ctx context.Context) (types.RunSummary, error) {
	sum := p.newSummary("run")
	slog.Info("starting run", "run_id", sum.RunID, "mode", sum.Mode, "force", sum.Force)

	if err := ensureDirs(p.Cfg.Paths.StagingRoot, p.Cfg.Paths.OutputRoot); err != nil {
		return p.finish(sum), err
	}

	archives, err := locate.All(p.Cfg.Paths.SourceRoot, p.Cfg.Locate)
	if err != nil {
		return p.finish(sum), err
	}
	sum.Discovered = len(archives)
	p.Metrics.AddLocated(len(archives))

	if !p.Cfg.Force {
		archives, sum.AlreadyDone, err = p.filterCompleted(archives)
		if err != nil {
			return p.finish(sum), err
		}
	}

	if err := p.expandStage(ctx, &sum, archives); err != nil {
		return p.finish(sum), err
	}
	if ctx.Err() != nil {
		slog.Info("run interrupted", "run_id", sum.RunID)
		return p.finish(sum), nil
	}

	ids, err := p.pendingVolumes()
	if err != nil {
		return p.finish(sum), err
	}
	err = p.cleanStage(ctx, &sum, ids)
	return p.finish(sum), err
}

// ExpandOnly locates archives and expands them into staging without
// cleaning anything.
func (p *Pipeline) ExpandOnly(ctx context.Context) (types.RunSummary, error) {
	sum := p.newSummary("expand")

	// The output root is still consulted so completed volumes are skipped.
	if err := ensureDirs(p.Cfg.Paths.StagingRoot, p.Cfg.Paths.OutputRoot); err != nil {
		return p.finish(sum), err
	}

	archives, err := locate.All(p.Cfg.Paths.SourceRoot, p.Cfg.Locate)
	if err != nil {
		return p.finish(sum), err
	}
	sum.Discovered = len(archives)
	p.Metrics.AddLocated(len(archives))

	if !p.Cfg.Force {
		archives, sum.AlreadyDone, err = p.filterCompleted(archives)
		if err != nil {
			return p.finish(sum), err
		}
	}

	err = p.expandStage(ctx, &sum, archives)
	return p.finish(sum), err
}

// CleanOnly cleans staged volumes without touching the source tree.
// Discovered counts the staged volumes found; already-done the ones whose
// output file exists.
func (p *Pipeline) CleanOnly(ctx context.Context) (types.RunSummary, error) {
	sum := p.newSummary("clean")

	if err := ensureDirs(p.Cfg.Paths.OutputRoot); err != nil {
		return p.finish(sum), err
	}

	staged, err := resume.Staged(p.Cfg.Paths.StagingRoot)
	if err != nil {
		return p.finish(sum), err
	}
	sum.Discovered = len(staged)

	ids := staged
	if !p.Cfg.Force {
		ids, err = resume.Pending(p.Cfg.Paths.StagingRoot, p.Cfg.Paths.OutputRoot)
		if err != nil {
			return p.finish(sum), err
		}
	}
	sum.AlreadyDone = len(staged) - len(ids)

	err = p.cleanStage(ctx, &sum, ids)
	return p.finish(sum), err
}

// Status is the filesystem state the next run would see.
type Status struct {
	Discovered int
	Staged     int
	Completed  int
	Pending    int
}

// Status counts eligible archives, staged volumes, completed outputs, and
// the pending remainder without changing anything. Staging and output roots
// that do not exist yet read as empty; a missing source root is an error.
func (p *Pipeline) Status() (Status, error) {
	var st Status

	archives, err := locate.All(p.Cfg.Paths.SourceRoot, p.Cfg.Locate)
	if err != nil {
		return st, err
	}
	st.Discovered = len(archives)

	staged, err := resume.Staged(p.Cfg.Paths.StagingRoot)
	if err != nil && !isNotFound(err) {
		return st, err
	}
	st.Staged = len(staged)

	completed, err := resume.Completed(p.Cfg.Paths.OutputRoot)
	if err != nil && !isNotFound(err) {
		return st, err
	}
	st.Completed = len(completed)

	for _, id := range staged {
		if !completed[id] {
			st.Pending++
		}
	}
	return st, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFoundError
	return errors.As(err, &nf)
}

func (p *Pipeline) newSummary(mode string) types.RunSummary {
	return types.RunSummary{
		RunID:   uuid.NewString(),
		Mode:    mode,
		Force:   p.Cfg.Force,
		Started: time.Now(),
	}
}

// finish stamps the elapsed time, logs the run, and records it in the
// ledger. The ledger write uses a fresh context so an interrupted run is
// still audited.
func (p *Pipeline) finish(sum types.RunSummary) types.RunSummary {
	sum.Elapsed = time.Since(sum.Started)
	slog.Info("run finished", "run_id", sum.RunID, "mode", sum.Mode,
		"discovered", sum.Discovered, "already_done", sum.AlreadyDone,
		"expanded", sum.Expanded, "cleaned", sum.Cleaned, "failed", sum.Failed,
		"elapsed", sum.Elapsed.Round(time.Millisecond))

	if p.Ledger != nil {
		if err := p.Ledger.RecordRun(context.Background(), sum); err != nil {
			slog.Warn("recording run in ledger", "run_id", sum.RunID, "error", err)
		}
	}
	return sum
}

// filterCompleted drops archives whose volume already has an output file.
func (p *Pipeline) filterCompleted(archives []string) ([]string, int, error) {
	completed, err := resume.Completed(p.Cfg.Paths.OutputRoot)
	if err != nil {
		return nil, 0, err
	}

	var kept []string
	done := 0
	for _, path := range archives {
		if completed[expand.ItemID(path)] {
			done++
			continue
		}
		kept = append(kept, path)
	}
	return kept, done, nil
}

func (p *Pipeline) expandStage(ctx context.Context, sum *types.RunSummary, archives []string) error {
	if len(archives) == 0 {
		return nil
	}

	res, err := expand.ExpandBatch(ctx, archives, p.Cfg.Paths.StagingRoot, p.Cfg.Workers.Extract, p.writer())
	sum.Expanded = res.Expanded
	sum.Failed += res.Failed
	sum.Failures = append(sum.Failures, res.Failures...)

	p.Metrics.AddExpanded(res.Expanded)
	for _, f := range res.Failures {
		p.Metrics.IncFailure(f.Stage)
	}
	return err
}

// cleanStage cleans ids through a freshly constructed cleaner. Clean-stage
// failure and duration metrics are observed by the cleaner itself; this
// level only maintains the pending gauge.
func (p *Pipeline) cleanStage(ctx context.Context, sum *types.RunSummary, ids []string) error {
	p.Metrics.SetPending(len(ids))
	if len(ids) == 0 {
		return nil
	}

	cleaner, err := p.newCleaner()
	if err != nil {
		return fmt.Errorf("configuring analyzer: %w", err)
	}

	res, err := cleaner.CleanBatch(ctx, ids, p.Cfg.Workers.Clean, p.writer())
	sum.Cleaned = res.Cleaned
	sum.Failed += res.Failed
	sum.Failures = append(sum.Failures, res.Failures...)

	p.Metrics.SetPending(len(ids) - res.Cleaned)
	return err
}

func (p *Pipeline) newCleaner() (*clean.Cleaner, error) {
	an, err := analyzer.New(p.Cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	return &clean.Cleaner{
		StagingRoot: p.Cfg.Paths.StagingRoot,
		OutputRoot:  p.Cfg.Paths.OutputRoot,
		Analyzer:    an,
		Terminator:  p.Cfg.Clean.Terminator,
		Metrics:     p.Metrics,
	}, nil
}

// pendingVolumes lists the volumes the clean stage should process: every
// staged volume under force, the uncompleted remainder otherwise.
func (p *Pipeline) pendingVolumes() ([]string, error) {
	if p.Cfg.Force {
		return resume.Staged(p.Cfg.Paths.StagingRoot)
	}
	return resume.Pending(p.Cfg.Paths.StagingRoot, p.Cfg.Paths.OutputRoot)
}

func (p *Pipeline) writer() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &types.FilesystemError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return nil
}
