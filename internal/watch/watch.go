// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watch drives continuous ingest: filesystem notifications on the
// source tree plus a periodic sweep, each firing one idempotent pipeline
// pass. Passes are cheap no-ops when nothing changed, so the watcher never
// tracks state of its own.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/volmill/volmill/pkg/types"
)

// Watcher coalesces filesystem events under Root into pipeline passes.
type Watcher struct {
	// Root is the source tree to watch, recursively.
	Root string

	// Ext is the archive extension that makes a file event relevant.
	Ext string

	// Debounce is the quiet period after the last relevant event before a
	// pass starts, long enough for an in-progress copy to settle.
	Debounce time.Duration

	// Sweep is the interval between unconditional passes. It catches
	// archives that arrived while the event queue overflowed.
	Sweep time.Duration

	// Pass runs one pipeline pass. An error stops the watcher; per-volume
	// failures are the pass's own business and must not surface here.
	Pass func(ctx context.Context) error
}

// Run watches until ctx is cancelled. One pass always runs at startup so a
// backlog present before the watcher started is drained immediately.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.Root); err != nil {
		return err
	}

	if err := w.pass(ctx); err != nil {
		return err
	}

	debounce := time.NewTimer(w.Debounce)
	debounce.Stop()
	sweep := time.NewTicker(w.Sweep)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			// New directories join the watch set immediately; archives
			// dropped into them afterwards produce their own events.
			if ev.Has(fsnotify.Create) {
				if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
					if err := addTree(fw, ev.Name); err != nil {
						slog.Warn("watching new directory", "path", ev.Name, "error", err)
					}
				}
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("archive event", "op", ev.Op.String(), "path", ev.Name)
			debounce.Reset(w.Debounce)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("filesystem watcher error", "error", watchErr)

		case <-debounce.C:
			if err := w.pass(ctx); err != nil {
				return err
			}

		case <-sweep.C:
			if err := w.pass(ctx); err != nil {
				return err
			}
		}
	}
}

// relevant reports whether an event can have added work: an archive
// appearing or growing. Hidden names and foreign extensions never trigger.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, w.Ext)
}

func (w *Watcher) pass(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	return w.Pass(ctx)
}

// addTree registers root and every non-hidden subdirectory with the
// watcher. Unwatchable subdirectories are logged and skipped; only a
// missing root is an error.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return &types.NotFoundError{Path: root, Err: err}
			}
			slog.Warn("skipping unwatchable entry", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := fw.Add(path); err != nil {
			slog.Warn("watching directory", "path", path, "error", err)
		}
		return nil
	})
}
