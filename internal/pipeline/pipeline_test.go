// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Integration tests: full pipeline runs over zip fixtures on a temp tree,
// exercising discovery, expansion, normalization, resume, cleaning, the
// ledger, and metrics together.

package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.yaml.in/yaml/v3"

	"github.com/volmill/volmill/internal/ledger"
	"github.com/volmill/volmill/internal/metrics"
	"github.com/volmill/volmill/pkg/types"
)

// --- fixtures ---

func makeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) types.Config {
	t.Helper()
	root := t.TempDir()

	cfg := types.DefaultConfig()
	cfg.Paths = types.PathsConfig{
		SourceRoot:  filepath.Join(root, "source"),
		StagingRoot: filepath.Join(root, "staging"),
		OutputRoot:  filepath.Join(root, "output"),
	}
	cfg.Workers = types.WorkersConfig{Extract: 2, Clean: 2}

	if err := os.MkdirAll(cfg.Paths.SourceRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func sourcePath(cfg types.Config, elems ...string) string {
	return filepath.Join(append([]string{cfg.Paths.SourceRoot}, elems...)...)
}

func readOutput(t *testing.T, cfg types.Config, id string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Paths.OutputRoot, id+".txt"))
	if err != nil {
		t.Fatalf("reading output for %s: %v", id, err)
	}
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// --- full runs ---

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "a", "b", "vol1.zip"), map[string]string{
		"vol1_00000004.txt": "alpha",
		"vol1_00000009.txt": "beta",
	})
	makeZip(t, sourcePath(cfg, "c", "vol2.zip"), map[string]string{
		"00000001.txt": "gamma",
	})

	var buf strings.Builder
	p := &Pipeline{Cfg: cfg, Out: &buf}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v\noutput: %s", err, buf.String())
	}

	if sum.Mode != "run" {
		t.Errorf("Mode = %q, want %q", sum.Mode, "run")
	}
	if sum.RunID == "" {
		t.Error("RunID is empty")
	}
	if sum.Discovered != 2 || sum.Expanded != 2 || sum.Cleaned != 2 || sum.Failed != 0 {
		t.Errorf("summary = %+v, want 2 discovered/expanded/cleaned", sum)
	}
	if sum.HasFailures() {
		t.Errorf("HasFailures() = true: %+v", sum.Failures)
	}

	// Prefixed and gapped entries come out normalized and concatenated in
	// page order.
	if got := readOutput(t, cfg, "vol1"); got != "alpha\nbeta\n" {
		t.Errorf("vol1 output = %q, want %q", got, "alpha\nbeta\n")
	}
	if got := readOutput(t, cfg, "vol2"); got != "gamma\n" {
		t.Errorf("vol2 output = %q, want %q", got, "gamma\n")
	}

	// Expansion is a move: archives consumed, staging populated.
	if exists(sourcePath(cfg, "a", "b", "vol1.zip")) {
		t.Error("vol1.zip still in source tree after expansion")
	}
	if !exists(filepath.Join(cfg.Paths.StagingRoot, "vol1", "00000001.txt")) {
		t.Error("vol1 staging directory missing normalized page 1")
	}

	for _, want := range []string{"expanded: vol1 (2 pages)", "cleaned: vol2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRunSkipsCompletedVolumes(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "new text"})
	makeZip(t, sourcePath(cfg, "vol2.zip"), map[string]string{"00000001.txt": "fresh"})

	if err := os.MkdirAll(cfg.Paths.OutputRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	prior := filepath.Join(cfg.Paths.OutputRoot, "vol1.txt")
	if err := os.WriteFile(prior, []byte("finished earlier\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.AlreadyDone != 1 {
		t.Errorf("AlreadyDone = %d, want 1", sum.AlreadyDone)
	}
	if sum.Expanded != 1 || sum.Cleaned != 1 {
		t.Errorf("Expanded/Cleaned = %d/%d, want 1/1", sum.Expanded, sum.Cleaned)
	}

	// The completed volume's archive and output are both untouched.
	if !exists(sourcePath(cfg, "vol1.zip")) {
		t.Error("vol1.zip consumed despite existing output")
	}
	if got := readOutput(t, cfg, "vol1"); got != "finished earlier\n" {
		t.Errorf("vol1 output overwritten: %q", got)
	}
	if got := readOutput(t, cfg, "vol2"); got != "fresh\n" {
		t.Errorf("vol2 output = %q", got)
	}
}

func TestRunForceReprocessesCompleted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Force = true
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "new text"})

	if err := os.MkdirAll(cfg.Paths.OutputRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	prior := filepath.Join(cfg.Paths.OutputRoot, "vol1.txt")
	if err := os.WriteFile(prior, []byte("finished earlier\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.AlreadyDone != 0 {
		t.Errorf("AlreadyDone = %d, want 0 under force", sum.AlreadyDone)
	}
	if sum.Expanded != 1 || sum.Cleaned != 1 {
		t.Errorf("Expanded/Cleaned = %d/%d, want 1/1", sum.Expanded, sum.Cleaned)
	}
	if !sum.Force {
		t.Error("summary does not record force mode")
	}
	if exists(sourcePath(cfg, "vol1.zip")) {
		t.Error("vol1.zip not consumed under force")
	}
	if got := readOutput(t, cfg, "vol1"); got != "new text\n" {
		t.Errorf("vol1 output = %q, want rewritten content", got)
	}
}

func TestRunPicksUpStagedLeftovers(t *testing.T) {
	cfg := testConfig(t)

	// A volume staged by an earlier interrupted run: archive long gone.
	dir := filepath.Join(cfg.Paths.StagingRoot, "vol3")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "00000001.txt"), []byte("delta"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.Discovered != 0 {
		t.Errorf("Discovered = %d, want 0", sum.Discovered)
	}
	if sum.Cleaned != 1 {
		t.Errorf("Cleaned = %d, want 1", sum.Cleaned)
	}
	if got := readOutput(t, cfg, "vol3"); got != "delta\n" {
		t.Errorf("vol3 output = %q", got)
	}
}

func TestRunIsolatesFailedArchives(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "good"})
	if err := os.WriteFile(sourcePath(cfg, "vol2.zip"), []byte("not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	p := &Pipeline{Cfg: cfg, Out: &buf}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("per-item failure should not abort the run: %v", err)
	}

	if sum.Expanded != 1 || sum.Cleaned != 1 || sum.Failed != 1 {
		t.Errorf("Expanded/Cleaned/Failed = %d/%d/%d, want 1/1/1",
			sum.Expanded, sum.Cleaned, sum.Failed)
	}
	if !sum.HasFailures() {
		t.Error("HasFailures() = false")
	}
	if len(sum.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(sum.Failures))
	}
	if f := sum.Failures[0]; f.ID != "vol2" || f.Stage != "extract" || f.Cause == "" {
		t.Errorf("failure = %+v, want vol2/extract with cause", f)
	}

	// The corrupt archive survives for retry.
	if !exists(sourcePath(cfg, "vol2.zip")) {
		t.Error("corrupt archive deleted from source tree")
	}
}

func TestRunMissingSourceRoot(t *testing.T) {
	cfg := testConfig(t)
	if err := os.RemoveAll(cfg.Paths.SourceRoot); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for missing source root")
	}
	var nf *types.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("error = %v, want NotFoundError", err)
	}
}

// --- stage-only entry points ---

func TestExpandOnly(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{
		"vol1_00000002.txt": "alpha",
	})

	p := &Pipeline{Cfg: cfg}
	sum, err := p.ExpandOnly(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.Mode != "expand" {
		t.Errorf("Mode = %q, want %q", sum.Mode, "expand")
	}
	if sum.Expanded != 1 || sum.Cleaned != 0 {
		t.Errorf("Expanded/Cleaned = %d/%d, want 1/0", sum.Expanded, sum.Cleaned)
	}
	if !exists(filepath.Join(cfg.Paths.StagingRoot, "vol1", "00000001.txt")) {
		t.Error("staged page not normalized")
	}
	if exists(filepath.Join(cfg.Paths.OutputRoot, "vol1.txt")) {
		t.Error("expand-only run produced an output file")
	}
}

func TestCleanOnly(t *testing.T) {
	cfg := testConfig(t)

	// An archive in the source tree must stay untouched in clean mode.
	makeZip(t, sourcePath(cfg, "volX.zip"), map[string]string{"00000001.txt": "x"})

	for id, text := range map[string]string{"vol1": "one", "vol2": "two"} {
		dir := filepath.Join(cfg.Paths.StagingRoot, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "00000001.txt"), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(cfg.Paths.OutputRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.OutputRoot, "vol1.txt"), []byte("done\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	sum, err := p.CleanOnly(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sum.Mode != "clean" {
		t.Errorf("Mode = %q, want %q", sum.Mode, "clean")
	}
	if sum.Discovered != 2 || sum.AlreadyDone != 1 || sum.Cleaned != 1 {
		t.Errorf("Discovered/AlreadyDone/Cleaned = %d/%d/%d, want 2/1/1",
			sum.Discovered, sum.AlreadyDone, sum.Cleaned)
	}
	if got := readOutput(t, cfg, "vol1"); got != "done\n" {
		t.Errorf("vol1 output reprocessed: %q", got)
	}
	if got := readOutput(t, cfg, "vol2"); got != "two\n" {
		t.Errorf("vol2 output = %q", got)
	}
	if !exists(sourcePath(cfg, "volX.zip")) {
		t.Error("clean-only run consumed a source archive")
	}
}

// --- status ---

func TestStatus(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "a"})
	makeZip(t, sourcePath(cfg, "vol2.zip"), map[string]string{"00000001.txt": "b"})

	for _, id := range []string{"vol3", "vol4"} {
		if err := os.MkdirAll(filepath.Join(cfg.Paths.StagingRoot, id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(cfg.Paths.OutputRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Paths.OutputRoot, "vol3.txt"), []byte("done\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &Pipeline{Cfg: cfg}
	st, err := p.Status()
	if err != nil {
		t.Fatal(err)
	}

	want := Status{Discovered: 2, Staged: 2, Completed: 1, Pending: 1}
	if st != want {
		t.Errorf("Status = %+v, want %+v", st, want)
	}
}

func TestStatusFreshTree(t *testing.T) {
	cfg := testConfig(t)

	p := &Pipeline{Cfg: cfg}
	st, err := p.Status()
	if err != nil {
		t.Fatalf("Status on a fresh tree: %v", err)
	}
	if st != (Status{}) {
		t.Errorf("Status = %+v, want all zero", st)
	}
}

// --- ledger and metrics wiring ---

func TestRunRecordsLedger(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "good"})
	if err := os.WriteFile(sourcePath(cfg, "vol2.zip"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	p := &Pipeline{Cfg: cfg, Ledger: store}
	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	runs, err := store.History(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d ledger runs, want 1", len(runs))
	}
	got := runs[0]
	if got.RunID != sum.RunID || got.Mode != "run" {
		t.Errorf("ledger run = %s/%s, want %s/run", got.RunID, got.Mode, sum.RunID)
	}
	if got.Expanded != 1 || got.Cleaned != 1 || got.Failed != 1 {
		t.Errorf("ledger counts = %d/%d/%d, want 1/1/1", got.Expanded, got.Cleaned, got.Failed)
	}

	failures, err := store.Failures(ctx, sum.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 1 || failures[0].ID != "vol2" || failures[0].Stage != "extract" {
		t.Errorf("ledger failures = %+v, want one vol2/extract entry", failures)
	}
}

func TestRunCollectsMetrics(t *testing.T) {
	cfg := testConfig(t)
	makeZip(t, sourcePath(cfg, "vol1.zip"), map[string]string{"00000001.txt": "good"})
	if err := os.WriteFile(sourcePath(cfg, "vol2.zip"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	p := &Pipeline{Cfg: cfg, Metrics: m}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.ArchivesLocatedTotal); got != 2 {
		t.Errorf("archives located = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VolumesExpandedTotal); got != 1 {
		t.Errorf("volumes expanded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.VolumesCleanedTotal); got != 1 {
		t.Errorf("volumes cleaned = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.FailuresTotal.WithLabelValues("extract")); got != 1 {
		t.Errorf("extract failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PendingVolumes); got != 0 {
		t.Errorf("pending volumes = %v, want 0", got)
	}
}

// --- run report ---

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	sum := types.RunSummary{
		RunID:      "run-42",
		Mode:       "run",
		Discovered: 3,
		Expanded:   2,
		Cleaned:    2,
		Failed:     1,
		Failures: []types.ItemFailure{
			{ID: "vol9", Stage: "analyze", Cause: "analyzer returned 2 results for 3 pages"},
		},
	}

	if err := WriteReport(path, sum); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc reportDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}

	if doc.RunID != "run-42" || doc.Discovered != 3 || doc.Failed != 1 {
		t.Errorf("report = %+v", doc)
	}
	if len(doc.Failures) != 1 || doc.Failures[0].ID != "vol9" {
		t.Errorf("report failures = %+v", doc.Failures)
	}
	if doc.Elapsed == "" {
		t.Error("report elapsed is empty")
	}
}
