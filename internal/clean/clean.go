// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package clean turns one staged volume into one output file: pages load in
// normalized order, the analyzer strips running headers and footers, and the
// concatenated bodies land in the output root under <id>.txt via an atomic
// rename. A failure on one volume never reaches another.
package clean

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/volmill/volmill/internal/analyzer"
	"github.com/volmill/volmill/internal/metrics"
	"github.com/volmill/volmill/internal/normalize"
	"github.com/volmill/volmill/pkg/types"
)

// Cleaner holds the fixed collaborators for cleaning volumes.
type Cleaner struct {
	StagingRoot string
	OutputRoot  string
	Analyzer    analyzer.Analyzer
	Terminator  string
	Metrics     *metrics.Metrics
}

// BatchResult holds the outcome of a batch cleaning run.
type BatchResult struct {
	Cleaned  int
	Failed   int
	Failures []types.ItemFailure
}

// Total returns the total number of volumes processed.
func (r BatchResult) Total() int {
	return r.Cleaned + r.Failed
}

// HasFailures reports whether any volumes failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// splitLines splits page file content into physical lines, tolerating CRLF
// endings and a final newline.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// loadPages reads the n normalized page files of dir in rank order. Every
// page is loaded, the first included; rank 1 is content like any other.
func loadPages(dir string, n int) ([]types.Page, error) {
	pages := make([]types.Page, 0, n)
	for seq := 1; seq <= n; seq++ {
		path := filepath.Join(dir, normalize.PageName(seq))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &types.FilesystemError{Op: "read", Path: path, Err: err}
		}
		pages = append(pages, types.Page{Seq: seq, Lines: splitLines(string(data))})
	}
	return pages, nil
}

// Clean processes a single staged volume end to end. The staging directory
// is normalized first (a no-op unless a prior run was interrupted), so a
// resumed volume is always loadable in rank order.
func (c *Cleaner) Clean(ctx context.Context, id string) (pageCount int, err error) {
	dir := filepath.Join(c.StagingRoot, id)

	if _, err := normalize.Normalize(dir); err != nil {
		return 0, err
	}
	n, err := normalize.Verify(dir)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("volume %s has no pages", id)
	}

	pages, err := loadPages(dir, n)
	if err != nil {
		return 0, err
	}

	results, err := c.Analyzer.Analyze(ctx, pages)
	if err != nil {
		return 0, &types.AnalyzerError{ID: id, Err: err}
	}

	var body strings.Builder
	for _, r := range results {
		body.WriteString(r.Body)
		body.WriteString(c.Terminator)
	}

	if err := c.writeOutput(id, body.String()); err != nil {
		return 0, err
	}
	return n, nil
}

// writeOutput writes content to a temp file in the output root and renames
// it to <id>.txt. The rename is the commit point: the resume filter never
// sees a half-written output file.
func (c *Cleaner) writeOutput(id, content string) error {
	dest := filepath.Join(c.OutputRoot, id+types.OutputExt)

	tmpFile, err := os.CreateTemp(c.OutputRoot, ".volmill-*.tmp")
	if err != nil {
		return &types.FilesystemError{Op: "create", Path: c.OutputRoot, Err: err}
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.WriteString(content)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return &types.FilesystemError{Op: "write", Path: tmpPath, Err: writeErr}
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return &types.FilesystemError{Op: "close", Path: tmpPath, Err: closeErr}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return &types.FilesystemError{Op: "rename", Path: dest, Err: err}
	}
	return nil
}

type itemResult struct {
	id    string
	pages int
	took  time.Duration
	err   error
}

// CleanBatch cleans volumes across a bounded worker pool, printing per-item
// status and returning a summary. Individual failures do not stop the batch;
// a fatal error cancels the remaining work and is returned after in-flight
// volumes finish.
func (c *Cleaner) CleanBatch(ctx context.Context, ids []string, workers int, w io.Writer) (BatchResult, error) {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	results := make(chan itemResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				start := time.Now()
				pages, err := c.Clean(ctx, id)
				results <- itemResult{id: id, pages: pages, took: time.Since(start), err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var result BatchResult
	var fatal error
	for r := range results {
		if r.err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", r.id, r.err)
			result.Failed++
			stage := types.FailureStage(r.err)
			result.Failures = append(result.Failures, types.ItemFailure{
				ID:    r.id,
				Stage: stage,
				Cause: r.err.Error(),
			})
			c.Metrics.IncFailure(stage)
			if fatal == nil && types.IsFatal(r.err) {
				fatal = r.err
				cancel()
			}
			continue
		}
		fmt.Fprintf(w, "cleaned: %s (%d pages, %s)\n", r.id, r.pages, r.took.Round(time.Millisecond))
		result.Cleaned++
		c.Metrics.ObserveClean(r.took)
	}

	fmt.Fprintf(w, "\nBatch summary: %d cleaned, %d failed (total: %d)\n",
		result.Cleaned, result.Failed, result.Total())
	return result, fatal
}
