package detector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
	"github.com/albertocavalcante/modsnap/internal/log"
	"github.com/albertocavalcante/modsnap/pkg/util"
)

// Locator resolves where a module lives and where its snapshot is stored.
type Locator interface {
	ModuleRoot(module string) string
	SnapshotPath(module string) string
}

// CommitPolicy decides when a module's updated snapshot is persisted.
type CommitPolicy int

const (
	// CommitOnSuccess leaves persistence to the caller, who invokes
	// Result.Rewrite once the module's rebuild succeeded. A failed or
	// interrupted rebuild keeps the old snapshot, so the next run still sees
	// the module as stale.
	CommitOnSuccess CommitPolicy = iota

	// CommitOnCheck persists every module's snapshot as soon as it has been
	// checked, so the file always reflects the most recently observed state.
	CommitOnCheck
)

// String returns the policy name used in config files.
func (p CommitPolicy) String() string {
	if p == CommitOnCheck {
		return "check"
	}
	return "success"
}

// ParseCommitPolicy parses "success" or "check".
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch s {
	case "", "success":
		return CommitOnSuccess, nil
	case "check":
		return CommitOnCheck, nil
	default:
		return 0, fmt.Errorf("unknown commit policy %q (want success or check)", s)
	}
}

// Checker runs the change-detection pass over a set of modules.
type Checker struct {
	locator Locator
	filter  *filter.Filter
	policy  CommitPolicy
	jobs    int
	log     *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithCommitPolicy sets when snapshots are persisted. Default CommitOnSuccess.
func WithCommitPolicy(p CommitPolicy) Option {
	return func(c *Checker) {
		c.policy = p
	}
}

// WithJobs sets how many modules are checked concurrently. Values below 2
// check sequentially.
func WithJobs(n int) Option {
	return func(c *Checker) {
		c.jobs = n
	}
}

// WithLogger sets the logger. Defaults to the "detector" component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		c.log = l
	}
}

// NewChecker creates a checker. A nil filter means filter.Default().
func NewChecker(loc Locator, f *filter.Filter, opts ...Option) *Checker {
	if f == nil {
		f = filter.Default()
	}
	c := &Checker{
		locator: loc,
		filter:  f,
		policy:  CommitOnSuccess,
		jobs:    1,
		log:     log.Component("detector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the checker's commit policy.
func (c *Checker) Policy() CommitPolicy { return c.policy }

// CheckModules returns the stale modules among names, in first-seen input
// order. Modules that could not be checked are left out of the list and
// reported through a *BatchError; the other modules are still returned.
func (c *Checker) CheckModules(ctx context.Context, names []string) ([]string, error) {
	report, err := c.Check(ctx, names)
	return report.StaleNames(), err
}

// Check checks every module and returns one result per distinct name, in
// first-seen input order. A failure in one module never stops the others;
// the returned error is the report's *BatchError, if any.
func (c *Checker) Check(ctx context.Context, names []string) (*Report, error) {
	start := time.Now()
	names = util.Dedupe(names)
	results := make([]*Result, len(names))

	if c.jobs < 2 || len(names) < 2 {
		for i, name := range names {
			results[i] = c.CheckModule(ctx, name)
		}
	} else {
		// Each goroutine owns its module's snapshot and result slot.
		var g errgroup.Group
		g.SetLimit(c.jobs)
		for i, name := range names {
			g.Go(func() error {
				results[i] = c.CheckModule(ctx, name)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &Report{Results: results}
	c.log.Info("check finished",
		"modules", len(results),
		"stale", len(report.Stale()),
		"failed", len(report.Failed()),
		"elapsed", time.Since(start))
	return report, report.Err()
}

// CheckModule runs the detection pass for a single module.
func (c *Checker) CheckModule(ctx context.Context, name string) *Result {
	r := &Result{
		Module:       name,
		Root:         c.locator.ModuleRoot(name),
		SnapshotPath: c.locator.SnapshotPath(name),
	}
	ml := c.log.With("module", name)

	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}

	info, err := os.Stat(r.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.Err = fmt.Errorf("%w: %s", ErrMissingModuleRoot, r.Root)
		ml.Warn("module root missing", "root", r.Root)
		return r
	case err != nil:
		r.Err = ioErr("stat", r.Root, err)
		return r
	case !info.IsDir():
		r.Err = fmt.Errorf("%w: module root %s is not a directory", ErrStructuralViolation, r.Root)
		return r
	}

	w := newWalker(r.Root, c.filter, ml)
	old, err := snapshot.Load(r.SnapshotPath)
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		ml.Info("no snapshot, full build required")
		c.bootstrap(r, w)
	case errors.Is(err, snapshot.ErrCorruptSnapshot), errors.Is(err, snapshot.ErrUnexpectedNodeType):
		ml.Warn("discarding unreadable snapshot", "error", err)
		r.Recovered = err
		c.bootstrap(r, w)
	case err != nil:
		r.Err = fmt.Errorf("%w: %w", ErrIO, err)
		return r
	default:
		modified, changes, derr := diff(r.Root, old, w)
		switch {
		case errors.Is(derr, ErrStructuralViolation):
			ml.Warn("snapshot no longer matches module layout, rebuilding from scratch", "error", derr)
			r.Recovered = derr
			c.bootstrap(r, w)
		case derr != nil:
			r.Err = derr
			return r
		default:
			r.Snapshot = old
			r.Modified = modified
			r.Changes = changes
		}
	}
	if r.Err != nil {
		return r
	}

	if r.Stale() {
		ml.Info("module is stale", "bootstrap", r.Bootstrap, "changes", r.Changes.TotalChanges())
	} else {
		ml.Debug("module up to date")
	}

	if c.policy == CommitOnCheck {
		if err := r.Rewrite(); err != nil {
			r.Err = err
		}
	}
	return r
}

func (c *Checker) bootstrap(r *Result, w *walker) {
	root, err := w.build(r.Root)
	if err != nil {
		r.Err = err
		return
	}
	r.Snapshot = root
	r.Bootstrap = true
	r.Modified = true
	r.Changes = NewChangeSet()
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
