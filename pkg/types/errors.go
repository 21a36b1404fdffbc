// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"syscall"
)

// NotFoundError reports a missing or unreadable root path (source, staging,
// or output). It is always fatal: the pipeline cannot proceed without its
// roots.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ExtractionError reports an unreadable or corrupt archive. The source
// archive is preserved so the volume can be retried on a later run.
type ExtractionError struct {
	ID  string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.ID, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// RenameCollisionError reports a normalization target name occupied by a
// file outside the rename plan. Nothing is overwritten when it is raised.
type RenameCollisionError struct {
	ID     string
	Target string
}

func (e *RenameCollisionError) Error() string {
	return fmt.Sprintf("normalize %s: target %s already occupied", e.ID, e.Target)
}

// AnalyzerError reports a failed or malformed page-structure analysis for
// one volume.
type AnalyzerError struct {
	ID  string
	Err error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.ID, e.Err)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// FilesystemError reports a failed write, rename, or removal. Op names the
// operation ("write", "rename", "remove").
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run rather than fail a
// single volume. Missing roots and a full disk qualify; per-volume
// extraction, rename, and analyzer failures do not.
func IsFatal(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, syscall.ENOSPC)
}

// FailureStage labels which pipeline stage a per-volume failure came from,
// for summaries and the ledger.
func FailureStage(err error) string {
	var xe *ExtractionError
	if errors.As(err, &xe) {
		return "extract"
	}
	var rc *RenameCollisionError
	if errors.As(err, &rc) {
		return "normalize"
	}
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return "analyze"
	}
	var fe *FilesystemError
	if errors.As(err, &fe) {
		return "write"
	}
	return "other"
}
