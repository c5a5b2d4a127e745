package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/dispatch"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Config configures the watcher.
type Config struct {
	Project      string
	Modules      []string
	Locator      detector.Locator
	Filter       *filter.Filter
	Checker      *detector.Checker
	Runner       dispatch.TaskRunner
	TaskTemplate string
	Debounce     time.Duration
	Logger       *Logger
}

// Watcher watches module directories and rebuilds stale modules after
// changes settle.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	logger    *Logger
	roots     map[string]string // module -> root directory
	ready     chan struct{}

	ctx context.Context

	// rebuildMu serializes detection and rebuild batches.
	rebuildMu sync.Mutex
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Locator == nil || cfg.Checker == nil || cfg.Runner == nil {
		return nil, errors.New("watch: locator, checker and runner are required")
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = NewLogger(LoggerConfig{})
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	roots := make(map[string]string, len(cfg.Modules))
	for _, m := range cfg.Modules {
		roots[m] = filepath.Clean(cfg.Locator.ModuleRoot(m))
	}

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		logger:    cfg.Logger,
		roots:     roots,
		ready:     make(chan struct{}),
		ctx:       context.Background(),
	}, nil
}

// Ready is closed once every module directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx

	window := w.config.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	w.debouncer = NewDebouncer(window, w.handleModules)
	defer w.debouncer.Stop()

	dirs := 0
	for _, m := range w.config.Modules {
		n, err := w.addRecursive(w.roots[m], w.roots[m])
		if err != nil {
			return fmt.Errorf("failed to watch module %s: %w", m, err)
		}
		dirs += n
	}

	w.logger.Ready(w.config.Modules, dirs, w.config.Project)
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			pending := w.debouncer.PendingCount()
			// Wait for an in-flight batch to observe the cancellation.
			w.rebuildMu.Lock()
			w.rebuildMu.Unlock()
			w.logger.Shutdown(pending)
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive watches dir and every directory below it that the filter
// accepts relative to moduleRoot. It returns how many directories were added.
func (w *Watcher) addRecursive(dir, moduleRoot string) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				w.logger.Error(fmt.Errorf("permission denied: %s", path))
				return nil
			}
			if path == dir {
				return err
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.config.Filter.IsExcluded(path, moduleRoot) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, path, err)
			}
			w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			return nil
		}
		added++
		return nil
	})
	return added, err
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// modulesFor returns every watched module whose tree contains path and does
// not exclude it. Nested modules each see the change.
func (w *Watcher) modulesFor(path string) []string {
	path = filepath.Clean(path)
	var out []string
	for m, root := range w.roots {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if w.config.Filter.IsExcluded(path, root) {
			continue
		}
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	mods := w.modulesFor(path)
	if len(mods) == 0 {
		return
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			for _, m := range mods {
				if _, err := w.addRecursive(path, w.roots[m]); err != nil {
					w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
				}
			}
		}
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// fsnotify drops watches of removed directories on its own.
		change = ChangeDeleted
	default:
		// Chmod only; size and mtime are what detection compares.
		return
	}

	w.logger.FileChanged(path, change)
	for _, m := range mods {
		w.debouncer.Add(m)
	}
}

// handleModules runs detection and rebuilds for one debounced batch.
func (w *Watcher) handleModules(mods []string) {
	w.rebuildMu.Lock()
	defer w.rebuildMu.Unlock()

	ctx := w.ctx
	if ctx.Err() != nil {
		return
	}

	w.logger.Checking(mods)
	report, err := w.config.Checker.Check(ctx, mods)
	if be, ok := detector.IsBatchError(err); ok {
		for _, me := range be.Errors {
			w.logger.Error(me)
		}
	}
	if len(report.Stale()) == 0 {
		w.logger.UpToDate()
		return
	}

	d := dispatch.New(report.Results, dispatch.WithTaskTemplate(w.config.TaskTemplate))
	sum, err := d.Run(ctx, w.config.Runner)
	for _, r := range report.Stale() {
		if r.Committed() {
			w.logger.Rebuilt(r.Module)
		}
	}
	for _, m := range sum.Failed {
		w.logger.Failed(m, err)
	}
	if err != nil && len(sum.Failed) == 0 && ctx.Err() == nil {
		w.logger.Error(err)
	}
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
