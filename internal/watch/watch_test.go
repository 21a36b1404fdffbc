// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	testDebounce = 100 * time.Millisecond
	passWait     = 2 * time.Second
	quietWait    = 400 * time.Millisecond
)

// startWatcher runs a watcher over root in the background and consumes its
// startup pass, so tests only see event-driven passes.
func startWatcher(t *testing.T, root string) chan struct{} {
	t.Helper()
	passes := make(chan struct{}, 32)
	w := &Watcher{
		Root:     root,
		Ext:      ".zip",
		Debounce: testDebounce,
		Sweep:    time.Hour,
		Pass: func(ctx context.Context) error {
			passes <- struct{}{}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v on cancellation", err)
			}
		case <-time.After(passWait):
			t.Error("watcher did not stop after cancellation")
		}
	})

	waitPass(t, passes)
	return passes
}

func waitPass(t *testing.T, passes chan struct{}) {
	t.Helper()
	select {
	case <-passes:
	case <-time.After(passWait):
		t.Fatal("timed out waiting for a pass")
	}
}

func expectQuiet(t *testing.T, passes chan struct{}) {
	t.Helper()
	select {
	case <-passes:
		t.Fatal("unexpected pass")
	case <-time.After(quietWait):
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatchStartupPassOnly(t *testing.T) {
	passes := startWatcher(t, t.TempDir())
	expectQuiet(t, passes)
}

func TestWatchTriggersOnNewArchive(t *testing.T) {
	root := t.TempDir()
	passes := startWatcher(t, root)

	writeFile(t, filepath.Join(root, "vol1.zip"))
	waitPass(t, passes)
}

func TestWatchCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	passes := startWatcher(t, root)

	for _, name := range []string{"a.zip", "b.zip", "c.zip", "d.zip", "e.zip"} {
		writeFile(t, filepath.Join(root, name))
	}

	waitPass(t, passes)
	expectQuiet(t, passes)
}

func TestWatchIgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	passes := startWatcher(t, root)

	writeFile(t, filepath.Join(root, ".DS_Store"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, "vol1.zip.part"))

	expectQuiet(t, passes)
}

func TestWatchSeesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	passes := startWatcher(t, root)

	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directories.
	time.Sleep(200 * time.Millisecond)

	writeFile(t, filepath.Join(root, "a", "b", "vol9.zip"))
	waitPass(t, passes)
}

func TestWatchSweepFiresWithoutEvents(t *testing.T) {
	passes := make(chan struct{}, 32)
	w := &Watcher{
		Root:     t.TempDir(),
		Ext:      ".zip",
		Debounce: testDebounce,
		Sweep:    150 * time.Millisecond,
		Pass: func(ctx context.Context) error {
			passes <- struct{}{}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitPass(t, passes) // startup
	waitPass(t, passes) // first sweep
	waitPass(t, passes) // second sweep

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestWatchStopsOnPassError(t *testing.T) {
	root := t.TempDir()
	wantErr := errors.New("analyzer misconfigured")

	calls := 0
	w := &Watcher{
		Root:     root,
		Ext:      ".zip",
		Debounce: testDebounce,
		Sweep:    time.Hour,
		Pass: func(ctx context.Context) error {
			calls++
			if calls > 1 {
				return wantErr
			}
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	// Let the startup pass complete before triggering the failing one.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(root, "vol1.zip"))

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Run returned %v, want %v", err, wantErr)
		}
	case <-time.After(passWait):
		t.Fatal("watcher did not stop after pass error")
	}
}

func TestWatchMissingRoot(t *testing.T) {
	w := &Watcher{
		Root:     filepath.Join(t.TempDir(), "missing"),
		Ext:      ".zip",
		Debounce: testDebounce,
		Sweep:    time.Hour,
		Pass:     func(ctx context.Context) error { return nil },
	}

	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestRelevant(t *testing.T) {
	w := &Watcher{Ext: ".zip"}

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"archive created", fsnotify.Event{Name: "/src/a.zip", Op: fsnotify.Create}, true},
		{"archive written", fsnotify.Event{Name: "/src/a.zip", Op: fsnotify.Write}, true},
		{"archive renamed in", fsnotify.Event{Name: "/src/a.zip", Op: fsnotify.Rename}, true},
		{"archive removed", fsnotify.Event{Name: "/src/a.zip", Op: fsnotify.Remove}, false},
		{"chmod only", fsnotify.Event{Name: "/src/a.zip", Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: "/src/.a.zip", Op: fsnotify.Create}, false},
		{"wrong extension", fsnotify.Event{Name: "/src/a.tar", Op: fsnotify.Create}, false},
		{"partial copy suffix", fsnotify.Event{Name: "/src/a.zip.part", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.relevant(tt.ev); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}
