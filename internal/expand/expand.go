// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package expand moves archives out of the source tree: each ZIP is unpacked
// flat into a per-volume staging directory, the extracted page count is
// verified against the archive, and only then is the source archive deleted.
package expand

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/volmill/volmill/internal/normalize"
	"github.com/volmill/volmill/pkg/types"
)

// maxEntrySize caps the decompressed size of a single ZIP entry. Page files
// are small text; anything near this limit is a malformed or hostile archive.
// A variable so tests can lower it.
var maxEntrySize int64 = 256 * 1024 * 1024

// BatchResult holds the outcome of a batch expansion run.
type BatchResult struct {
	Expanded int
	Failed   int
	Volumes  []*types.Volume
	Failures []types.ItemFailure
}

// Total returns the total number of archives processed.
func (r BatchResult) Total() int {
	return r.Expanded + r.Failed
}

// HasFailures reports whether any archives failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ItemID derives the volume identifier from an archive path: the base name
// with its extension removed.
func ItemID(archivePath string) string {
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Expand unpacks one archive into <stagingRoot>/<id> and deletes the source.
// Entry paths inside the ZIP are flattened to their base names. The source
// archive is only removed after the staging directory holds exactly the
// extracted page count, so any failure leaves the archive in place for retry.
func Expand(archivePath, stagingRoot string) (*types.Volume, error) {
	id := ItemID(archivePath)
	dest := filepath.Join(stagingRoot, id)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &types.ExtractionError{ID: id, Err: err}
	}
	defer zr.Close()

	// A leftover directory from an interrupted run is untrustworthy.
	// Rebuild it from the archive, which is still the source of truth.
	if _, err := os.Stat(dest); err == nil {
		slog.Warn("removing stale staging directory", "volume", id, "dir", dest)
		if err := os.RemoveAll(dest); err != nil {
			return nil, &types.FilesystemError{Op: "remove", Path: dest, Err: err}
		}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, &types.FilesystemError{Op: "mkdir", Path: dest, Err: err}
	}

	extracted := 0
	seen := make(map[string]string)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		if name == "" || name == "." || name == ".." || name == "/" {
			os.RemoveAll(dest)
			return nil, &types.ExtractionError{ID: id, Err: fmt.Errorf("unsafe entry name %q", f.Name)}
		}
		// Hidden entries are packaging junk (resource forks and the like),
		// not pages.
		if strings.HasPrefix(name, ".") {
			continue
		}
		if prev, ok := seen[name]; ok {
			os.RemoveAll(dest)
			return nil, &types.ExtractionError{ID: id, Err: fmt.Errorf("entries %q and %q collide at %q", prev, f.Name, name)}
		}
		seen[name] = f.Name

		if err := extractEntry(f, filepath.Join(dest, name)); err != nil {
			os.RemoveAll(dest)
			return nil, &types.ExtractionError{ID: id, Err: err}
		}
		extracted++
	}

	if extracted == 0 {
		os.RemoveAll(dest)
		return nil, &types.ExtractionError{ID: id, Err: fmt.Errorf("archive contains no page files")}
	}

	// Recount on disk before trusting the extraction.
	onDisk, err := os.ReadDir(dest)
	if err != nil {
		return nil, &types.FilesystemError{Op: "readdir", Path: dest, Err: err}
	}
	if len(onDisk) != extracted {
		os.RemoveAll(dest)
		return nil, &types.ExtractionError{ID: id, Err: fmt.Errorf("extracted %d files but directory holds %d", extracted, len(onDisk))}
	}

	if err := os.Remove(archivePath); err != nil {
		return nil, &types.FilesystemError{Op: "remove", Path: archivePath, Err: err}
	}

	return &types.Volume{
		ID:          id,
		ArchivePath: archivePath,
		StagingDir:  dest,
		PageCount:   extracted,
	}, nil
}

// extractEntry writes one ZIP entry to destPath, enforcing the per-entry
// decompression cap. The copy runs through a limit of cap+1 so a forged size
// header is caught by the actual byte count.
func extractEntry(f *zip.File, destPath string) error {
	if f.UncompressedSize64 > uint64(maxEntrySize) {
		return fmt.Errorf("entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, maxEntrySize)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	n, copyErr := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("writing %s: %w", destPath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", destPath, closeErr)
	}
	if n > maxEntrySize {
		return fmt.Errorf("entry %s decompressed beyond %d bytes", f.Name, maxEntrySize)
	}
	return nil
}

type itemResult struct {
	id  string
	vol *types.Volume
	err error
}

// expandOne unpacks one archive and normalizes its page names.
func expandOne(archivePath, stagingRoot string) itemResult {
	id := ItemID(archivePath)
	vol, err := Expand(archivePath, stagingRoot)
	if err != nil {
		return itemResult{id: id, err: err}
	}
	if _, err := normalize.Normalize(vol.StagingDir); err != nil {
		return itemResult{id: id, err: err}
	}
	return itemResult{id: id, vol: vol}
}

// ExpandBatch expands archives across a bounded worker pool, printing
// per-item status and returning a summary. Individual failures do not stop
// the batch; a fatal error (missing root, full disk) cancels the remaining
// work and is returned after in-flight items finish.
func ExpandBatch(ctx context.Context, archives []string, stagingRoot string, workers int, w io.Writer) (BatchResult, error) {
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
			for p := range jobs {
				results <- expandOne(p, stagingRoot)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range archives {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- p:
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
			result.Failures = append(result.Failures, types.ItemFailure{
				ID:    r.id,
				Stage: types.FailureStage(r.err),
				Cause: r.err.Error(),
			})
			if fatal == nil && types.IsFatal(r.err) {
				fatal = r.err
				cancel()
			}
			continue
		}
		fmt.Fprintf(w, "expanded: %s (%d pages)\n", r.vol.ID, r.vol.PageCount)
		result.Expanded++
		result.Volumes = append(result.Volumes, r.vol)
	}

	fmt.Fprintf(w, "\nBatch summary: %d expanded, %d failed (total: %d)\n",
		result.Expanded, result.Failed, result.Total())
	return result, fatal
}
