package watch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/dispatch"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/modules"
	"github.com/albertocavalcante/modsnap/internal/log"
)

func TestIsWatchLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"not exist", &os.PathError{Op: "watch", Path: "/foo", Err: os.ErrNotExist}, false},
		{"permission", os.ErrPermission, false},
		{"inotify limit", errors.New("no space left on device"), true},
		{"fd limit", errors.New("too many open files"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWatchLimitError(tt.err); got != tt.expected {
				t.Errorf("isWatchLimitError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

// callLog is a TaskRunner that records the tasks it was asked to run.
type callLog struct {
	mu    sync.Mutex
	tasks []string
}

func (c *callLog) Execute(_ context.Context, _ string, task string) dispatch.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, task)
	return dispatch.Outcome{Status: dispatch.Succeeded}
}

func (c *callLog) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

func newTestWatcher(t *testing.T, root string, mods []string, runner dispatch.TaskRunner, out *bytes.Buffer) *Watcher {
	t.Helper()
	layout := modules.NewLayout(root)
	w, err := New(Config{
		Project:  root,
		Modules:  mods,
		Locator:  layout,
		Filter:   filter.Default(),
		Checker:  detector.NewChecker(layout, nil, detector.WithLogger(log.Discard())),
		Runner:   runner,
		Debounce: 50 * time.Millisecond,
		Logger:   NewLogger(LoggerConfig{Writer: out, NoColor: true}),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without checker and runner should fail")
	}
}

func TestModulesFor(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root, []string{"app", "feature", "feature:login"}, &callLog{}, &bytes.Buffer{})

	tests := []struct {
		path string
		want []string
	}{
		{filepath.Join(root, "app", "src", "Main.kt"), []string{"app"}},
		{filepath.Join(root, "app"), []string{"app"}},
		{filepath.Join(root, "application", "x"), nil},
		{filepath.Join(root, "app", "build", "out.class"), nil},
		{filepath.Join(root, "feature", "login", "Login.kt"), []string{"feature", "feature:login"}},
		{filepath.Join(root, "feature", "build", "login.snapshot"), nil},
		{filepath.Join(root, "settings.gradle"), nil},
	}
	for _, tt := range tests {
		if got := w.modulesFor(tt.path); !slices.Equal(got, tt.want) {
			t.Errorf("modulesFor(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "app", "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "Main.kt"), []byte("fun main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &callLog{}
	var out bytes.Buffer
	w := newTestWatcher(t, root, []string{"app"}, runner, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not become ready")
	}

	if err := os.WriteFile(filepath.Join(src, "Util.kt"), []byte("object Util"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.logger.Stats().Rebuilds == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := runner.get(); len(got) == 0 || got[0] != ":app:assemble" {
		t.Fatalf("runner tasks = %v, want :app:assemble", got)
	}
	if _, err := os.Stat(filepath.Join(root, "build", "app.snapshot")); err != nil {
		t.Error("successful rebuild should commit the snapshot")
	}
	if w.logger.Stats().Rebuilds < 1 {
		t.Errorf("expected a rebuild in stats, output:\n%s", out.String())
	}
}

func TestWatcher_ReportsPendingOnShutdown(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "app", "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}

	runner := &callLog{}
	var out bytes.Buffer
	w := newTestWatcher(t, root, []string{"app"}, runner, &out)
	w.config.Debounce = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not become ready")
	}

	if err := os.WriteFile(filepath.Join(src, "Main.kt"), []byte("fun main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for w.debouncer.PendingCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(out.String(), "1 modules have unprocessed changes") {
		t.Errorf("shutdown should report the pending module, output:\n%s", out.String())
	}
	if got := runner.get(); len(got) != 0 {
		t.Errorf("no rebuild should run after shutdown, got %v", got)
	}
}

func TestWatcherClose(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), nil, &callLog{}, &bytes.Buffer{})
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	var empty Watcher
	if err := empty.Close(); err != nil {
		t.Errorf("Close() on zero Watcher error = %v", err)
	}
}
