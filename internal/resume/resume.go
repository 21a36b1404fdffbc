// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resume derives the pending work set from filesystem state alone.
// There is no checkpoint file: a volume is complete exactly when its output
// file exists, so deleting a bad output file is all it takes to force
// reprocessing on the next run.
package resume

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/volmill/volmill/pkg/types"
)

// Staged returns the identifiers of all volume directories under
// stagingRoot, sorted. Hidden directories and loose files are not volumes.
func Staged(stagingRoot string) ([]string, error) {
	entries, err := os.ReadDir(stagingRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Path: stagingRoot, Err: err}
		}
		return nil, &types.FilesystemError{Op: "readdir", Path: stagingRoot, Err: err}
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Completed returns the set of identifiers that already have an output file
// under outputRoot.
func Completed(outputRoot string) (map[string]bool, error) {
	entries, err := os.ReadDir(outputRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Path: outputRoot, Err: err}
		}
		return nil, &types.FilesystemError{Op: "readdir", Path: outputRoot, Err: err}
	}

	done := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, types.OutputExt) {
			continue
		}
		done[strings.TrimSuffix(name, types.OutputExt)] = true
	}
	return done, nil
}

// Pending computes the identifiers staged but not yet cleaned. It is
// recomputed fresh from both listings on every call, so state changed by
// hand between runs is respected automatically.
func Pending(stagingRoot, outputRoot string) ([]string, error) {
	staged, err := Staged(stagingRoot)
	if err != nil {
		return nil, err
	}
	done, err := Completed(outputRoot)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, id := range staged {
		if !done[id] {
			pending = append(pending, id)
		}
	}
	return pending, nil
}
