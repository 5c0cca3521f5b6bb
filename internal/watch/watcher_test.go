package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/questline/internal/document"
	"github.com/starford/questline/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingReloader struct {
	path    string
	reloads atomic.Int32
	fail    atomic.Bool
}

func (r *countingReloader) Path() string { return r.path }

func (r *countingReloader) Reload() error {
	r.reloads.Add(1)
	if r.fail.Load() {
		return errors.New("broken snapshot")
	}
	return nil
}

func start(t *testing.T, r Reloader, cb ReloadCallback) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, r, quietLogger(), 50*time.Millisecond, cb); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_ReloadsOnDocumentWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	_ = os.WriteFile(path, []byte("name: a\n"), 0o644)

	r := &countingReloader{path: path}
	var calls atomic.Int32
	start(t, r, func(context.Context) { calls.Add(1) })

	_ = os.WriteFile(path, []byte("name: b\n"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() == 1
	}, "document change did not trigger a reload")
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	_ = os.WriteFile(path, []byte("name: a\n"), 0o644)

	r := &countingReloader{path: path}
	start(t, r, nil)

	for i := range 5 {
		_ = os.WriteFile(path, []byte{byte('a' + i)}, 0o644)
		time.Sleep(5 * time.Millisecond)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.reloads.Load() >= 1
	}, "no reload after burst")
	time.Sleep(200 * time.Millisecond)
	if n := r.reloads.Load(); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	_ = os.WriteFile(path, []byte("name: a\n"), 0o644)

	r := &countingReloader{path: path}
	start(t, r, nil)

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".scene.yaml.swp"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)
	if n := r.reloads.Load(); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

func TestWatcher_ImageInNewDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	_ = os.WriteFile(path, []byte("name: a\n"), 0o644)

	r := &countingReloader{path: path}
	start(t, r, nil)

	sub := filepath.Join(dir, "art")
	_ = os.Mkdir(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "quest.PNG"), []byte("png"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.reloads.Load() >= 1
	}, "image in new dir did not trigger a reload")
}

func TestWatcher_FailedReloadSkipsCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	_ = os.WriteFile(path, []byte("name: a\n"), 0o644)

	r := &countingReloader{path: path}
	r.fail.Store(true)
	var calls atomic.Int32
	start(t, r, func(context.Context) { calls.Add(1) })

	_ = os.WriteFile(path, []byte("{{"), 0o644)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.reloads.Load() >= 1
	}, "no reload attempted")
	if calls.Load() != 0 {
		t.Error("callback ran after failed reload")
	}
}

func TestWatcher_LoaderSwapsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	writeSnapshot(t, path, "first")

	l, err := document.NewLoader(path)
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var names []string
	start(t, l, func(context.Context) {
		mu.Lock()
		names = append(names, l.Document().(*document.Document).Name())
		mu.Unlock()
	})

	writeSnapshot(t, path, "second")

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(names) > 0 && names[len(names)-1] == "second"
	}, "loader did not pick up the new snapshot")
}

func writeSnapshot(t *testing.T, path, name string) {
	t.Helper()
	f := testutil.QuestlineFile(3)
	f.Name = name
	data, err := yaml.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
