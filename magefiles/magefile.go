//go:build mage

// Package main contains Mage build targets for volmill developer tooling.
package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the pipeline expects.
var projectDirs = []string{
	"source",
	"staging",
	"output",
}

// Init creates the working directory skeleton for the pipeline.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Working directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "volmill"
	cmdPkg  = "./cmd/volmill"
)

// Build compiles the CLI binary into bin/, stamped with the git version.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + version()
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// version derives the build version from git, falling back to "dev" outside
// a checkout.
func version() string {
	v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || v == "" {
		return "dev"
	}
	return v
}

// fixtureVolumes describes the sample archives Fixture writes under source/.
// The page numbering carries gaps and identifier prefixes on purpose; the
// pipeline is expected to repair both.
var fixtureVolumes = []struct {
	dir   string
	id    string
	pages []int
}{
	{dir: "uc1/pairtree_root/b0/00/05/61", id: "uc1.b0000561", pages: []int{1, 2, 3, 5, 8}},
	{dir: "uc1/pairtree_root/b0/00/05/62", id: "uc1.b0000562", pages: []int{1, 2, 3, 4}},
	{dir: "mdp/pairtree_root/39/01/50/12", id: "mdp.39015012345678", pages: []int{2, 3, 4, 6, 7, 9}},
}

// Fixture writes a small pairtree of zipped sample volumes under source/ for
// manual pipeline runs. Existing archives with the same names are replaced.
func Fixture() error {
	mg.Deps(Init)
	for _, vol := range fixtureVolumes {
		dir := filepath.Join("source", vol.dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		path := filepath.Join(dir, vol.id+".zip")
		if err := writeFixtureArchive(path, vol.id, vol.pages); err != nil {
			return err
		}
		fmt.Println("  ", path)
	}
	fmt.Println("Fixture archives written.")
	return nil
}

// writeFixtureArchive builds one ZIP of prefixed page entries plus a hidden
// junk entry of the kind scanning rigs leave behind.
func writeFixtureArchive(path, id string, pages []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	zw := zip.NewWriter(f)
	add := func(name, content string) error {
		w, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("adding %s to %s: %w", name, path, err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			return fmt.Errorf("writing %s in %s: %w", name, path, err)
		}
		return nil
	}
	for _, n := range pages {
		if err := add(fmt.Sprintf("%s_%08d.txt", id, n), pageText(id, n)); err != nil {
			f.Close()
			return err
		}
	}
	if err := add(".DS_Store", "junk"); err != nil {
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return f.Close()
}

// pageText renders one fixture page: a running header, a printed folio
// number, and a few body lines. The header repeats on every page so the
// cleaning analyzer has something to find.
func pageText(id string, n int) string {
	var b strings.Builder
	b.WriteString("THE QUARTERLY REVIEW OF NATURAL HISTORY\n")
	fmt.Fprintf(&b, "%d\n\n", n+11)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "Body line %d of page %d in volume %s.\n", i, n, id)
	}
	return b.String()
}

// Stats prints project metrics: Go production and test line counts.
func Stats() error {
	prodLines, err := countGoLines(".", false)
	if err != nil {
		return err
	}
	testLines, err := countGoLines(".", true)
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prodLines)
	fmt.Printf("Lines of code (Go, tests):      %d\n", testLines)
	return nil
}

// countGoLines walks the directory tree and counts non-blank lines in Go files.
// If testOnly is true, count only _test.go files; otherwise count non-test .go files.
func countGoLines(root string, testOnly bool) (int, error) {
	total := 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		isTest := strings.HasSuffix(path, "_test.go")
		if testOnly != isTest {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				total++
			}
		}
		return nil
	})
	return total, err
}
