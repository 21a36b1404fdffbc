// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package locate walks the source pairtree and yields paths to eligible
// volume archives.
package locate

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/volmill/volmill/pkg/types"
)

// dupCopyPattern matches duplicate-copy filename stems such as
// "mdp.39015012345678 2": artifacts of interrupted copy operations, never a
// second distinct volume.
var dupCopyPattern = regexp.MustCompile(` \d+$`)

// Eligible reports whether name is an archive filename the pipeline should
// process. Hidden names, names without the configured extension
// (case-sensitive), and duplicate-copy stems are rejected. The decision is
// made on the filename alone, never on the directory it sits in.
func Eligible(name, ext string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	if !strings.HasSuffix(name, ext) {
		return false
	}
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		return false
	}
	return !dupCopyPattern.MatchString(stem)
}

// Walk traverses the tree under root and calls fn with the absolute path of
// every eligible archive. The traversal is lazy and restartable: walking
// again always reflects the current tree. Order carries no meaning beyond
// complete, non-duplicating visitation.
//
// A missing or unreadable root fails with a NotFoundError. An unreadable
// entry deeper in the tree is logged and skipped so one bad directory never
// aborts a batch. An error returned by fn stops the walk and is returned
// as-is.
func Walk(root string, cfg types.LocateConfig, fn func(path string) error) error {
	if _, err := os.Stat(root); err != nil {
		return &types.NotFoundError{Path: root, Err: err}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return &types.NotFoundError{Path: root, Err: err}
			}
			slog.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !Eligible(name, cfg.ArchiveExt) {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			slog.Warn("skipping entry with unresolvable path", "path", path, "error", err)
			return nil
		}
		return fn(abs)
	})
}

// All collects every eligible archive path under root.
func All(root string, cfg types.LocateConfig) ([]string, error) {
	var paths []string
	err := Walk(root, cfg, func(path string) error {
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
