// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize repairs page filenames inside a staging directory into
// the canonical contiguous numbering: identifier prefixes are dropped and
// every page is renamed to its zero-padded rank. Running it on an already
// normalized directory is a no-op.
package normalize

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/volmill/volmill/pkg/types"
)

// tmpSuffix marks the intermediate names used during the two-phase rename.
// Temp names stay visible (no leading dot) so an interrupted repair never
// hides pages from a later pass.
const tmpSuffix = ".vmtmp"

// pagePrefixPattern matches filenames that carry an identifier prefix before
// the numeric stem, e.g. "mdp.39015012345678_00000007.txt". Each filename is
// tested independently; the directory name says nothing about its contents.
var pagePrefixPattern = regexp.MustCompile(`^.+_(\d+(?:\.\w+)?)$`)

// Rename is one planned filename change within a staging directory.
type Rename struct {
	Old string
	New string
}

// Plan is the complete old-to-new mapping for one staging directory,
// computed up front so aliasing between source and target names is visible
// before any file moves.
type Plan struct {
	Dir     string
	Pages   int
	Renames []Rename
}

// sortKey strips an identifier prefix from a filename for ordering purposes.
// Unprefixed names sort as themselves.
func sortKey(name string) string {
	if m := pagePrefixPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}

// PageName renders the canonical filename for a 1-based page rank.
func PageName(rank int) string {
	return fmt.Sprintf("%0*d%s", types.PageSeqWidth, rank, types.PageExt)
}

// BuildPlan lists the page files in dir, orders them by prefix-stripped name,
// and maps each to its rank-based canonical name. Hidden files and
// subdirectories are not pages and are ignored.
func BuildPlan(dir string) (*Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &types.NotFoundError{Path: dir, Err: err}
		}
		return nil, &types.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ki, kj := sortKey(names[i]), sortKey(names[j])
		if ki != kj {
			return ki < kj
		}
		return names[i] < names[j]
	})

	plan := &Plan{Dir: dir, Pages: len(names)}
	for i, name := range names {
		target := PageName(i + 1)
		if name == target {
			continue
		}
		plan.Renames = append(plan.Renames, Rename{Old: name, New: target})
	}
	return plan, nil
}

// Apply performs the planned renames in two phases: every changed file first
// moves to its target name plus a temp suffix, then the temp names collapse
// to the finals. Target names can alias not-yet-moved source names, so a
// direct rename loop would overwrite pages; the intermediate namespace is
// disjoint from both. Any unexpected occupant stops the repair rather than
// being overwritten.
func (p *Plan) Apply() error {
	id := filepath.Base(p.Dir)

	for _, r := range p.Renames {
		tmp := filepath.Join(p.Dir, r.New+tmpSuffix)
		old := filepath.Join(p.Dir, r.Old)
		if tmp != old {
			if _, err := os.Lstat(tmp); err == nil {
				return &types.RenameCollisionError{ID: id, Target: r.New + tmpSuffix}
			}
		}
		if err := os.Rename(old, tmp); err != nil {
			return &types.FilesystemError{Op: "rename", Path: old, Err: err}
		}
	}

	for _, r := range p.Renames {
		tmp := filepath.Join(p.Dir, r.New+tmpSuffix)
		final := filepath.Join(p.Dir, r.New)
		if _, err := os.Lstat(final); err == nil {
			return &types.RenameCollisionError{ID: id, Target: r.New}
		}
		if err := os.Rename(tmp, final); err != nil {
			return &types.FilesystemError{Op: "rename", Path: tmp, Err: err}
		}
	}
	return nil
}

// Verify checks that dir's page filenames are exactly the contiguous
// canonical sequence 1..N and returns N. The check re-reads the directory;
// the repair is not trusted to have worked.
func Verify(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, &types.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for i, name := range names {
		if want := PageName(i + 1); name != want {
			return 0, fmt.Errorf("page %d of %s is named %q, want %q", i+1, dir, name, want)
		}
	}
	return len(names), nil
}

// Normalize repairs dir in place and verifies the result. It returns the
// number of files renamed, which is zero when the directory was already
// normalized.
func Normalize(dir string) (int, error) {
	plan, err := BuildPlan(dir)
	if err != nil {
		return 0, err
	}
	if err := plan.Apply(); err != nil {
		return 0, err
	}
	if _, err := Verify(dir); err != nil {
		return 0, err
	}
	return len(plan.Renames), nil
}
