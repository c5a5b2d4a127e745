// Package dispatch rebuilds stale modules one at a time and persists each
// module's snapshot only after its rebuild succeeded.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/internal/log"
)

var (
	// ErrNothingToCommit is returned by CommitCurrent when no task is
	// awaiting a commit.
	ErrNothingToCommit = errors.New("no dispatched module awaiting commit")

	// ErrTaskFailed is returned by Run when a rebuild reported failure.
	ErrTaskFailed = errors.New("rebuild failed")

	// ErrTaskEnded is returned by Run when a rebuild ended without a verdict.
	ErrTaskEnded = errors.New("rebuild ended without a result")
)

type state int

const (
	stateIdle state = iota
	stateDispatching
	stateStopped
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDispatching:
		return "dispatching"
	default:
		return "stopped"
	}
}

// Dispatcher walks an ordered list of stale modules.
//
// It is not safe for concurrent use; at most one task is in flight.
type Dispatcher struct {
	results  []*detector.Result
	template string
	log      *slog.Logger

	state   state
	index   int // next result to hand out
	current int // result last handed out, -1 if none
	pending bool
	err     error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTaskTemplate sets the task name template. See TaskName.
func WithTaskTemplate(template string) Option {
	return func(d *Dispatcher) {
		d.template = template
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a dispatcher over results, in order. Results that are not
// stale are ignored.
func New(results []*detector.Result, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		template: DefaultTaskTemplate,
		log:      log.Component("dispatch"),
		current:  -1,
	}
	for _, r := range results {
		if r != nil && r.Stale() {
			d.results = append(d.results, r)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Len returns the number of modules to rebuild.
func (d *Dispatcher) Len() int { return len(d.results) }

// HasNext reports whether Next would return a task.
func (d *Dispatcher) HasNext() bool {
	return d.state != stateStopped && d.index < len(d.results)
}

// Next returns the task for the next module and advances. It returns false
// once every module was handed out or after Fail.
func (d *Dispatcher) Next() (Task, bool) {
	if !d.HasNext() {
		if d.state != stateStopped {
			d.state = stateIdle
		}
		return Task{}, false
	}
	r := d.results[d.index]
	d.current = d.index
	d.index++
	d.pending = true
	d.state = stateDispatching
	return Task{
		Module: r.Module,
		Root:   r.Root,
		Name:   TaskName(d.template, r.Module),
	}, true
}

// CommitCurrent persists the snapshot of the module last returned by Next.
// Each dispatched module can be committed at most once.
func (d *Dispatcher) CommitCurrent() error {
	if !d.pending || d.current < 0 {
		return ErrNothingToCommit
	}
	r := d.results[d.current]
	if err := r.Rewrite(); err != nil {
		return fmt.Errorf("module %s: %w", r.Module, err)
	}
	d.pending = false
	d.log.Debug("snapshot committed", "module", r.Module, "path", r.SnapshotPath)
	return nil
}

// Fail stops the dispatcher. No further tasks are handed out and the
// current module is left uncommitted.
func (d *Dispatcher) Fail(err error) {
	d.state = stateStopped
	d.pending = false
	d.err = err
}

// Err returns the error passed to Fail, if any.
func (d *Dispatcher) Err() error { return d.err }

// remaining returns the modules not yet handed out.
func (d *Dispatcher) remaining() []string {
	var names []string
	for _, r := range d.results[d.index:] {
		names = append(names, r.Module)
	}
	return names
}

// Summary describes a Run.
type Summary struct {
	Built   []string      `json:"built"`
	Failed  []string      `json:"failed"`
	Skipped []string      `json:"skipped"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Run rebuilds every module in order. A successful rebuild is committed
// before the next one starts. The first failed or inconclusive rebuild stops
// the run; modules after it are reported as skipped.
func (d *Dispatcher) Run(ctx context.Context, runner TaskRunner) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Built: []string{}, Failed: []string{}, Skipped: []string{}}
	defer func() { sum.Elapsed = time.Since(start) }()

	for d.HasNext() {
		if err := ctx.Err(); err != nil {
			d.Fail(err)
			sum.Skipped = append(sum.Skipped, d.remaining()...)
			return sum, err
		}

		task, _ := d.Next()
		ml := d.log.With("module", task.Module, "task", task.Name)
		ml.Info("rebuilding module")

		out := runner.Execute(ctx, task.Root, task.Name)
		switch out.Status {
		case Succeeded:
			if err := d.CommitCurrent(); err != nil {
				d.Fail(err)
				sum.Failed = append(sum.Failed, task.Module)
				sum.Skipped = append(sum.Skipped, d.remaining()...)
				return sum, err
			}
			ml.Info("module rebuilt", "elapsed", out.Duration)
			sum.Built = append(sum.Built, task.Module)

		case Failed:
			err := fmt.Errorf("%w: module %s", ErrTaskFailed, task.Module)
			if out.Err != nil {
				err = fmt.Errorf("%w: module %s: %w", ErrTaskFailed, task.Module, out.Err)
			}
			ml.Error("rebuild failed", "error", out.Err)
			d.Fail(err)
			sum.Failed = append(sum.Failed, task.Module)
			sum.Skipped = append(sum.Skipped, d.remaining()...)
			return sum, err

		default:
			err := fmt.Errorf("%w: module %s", ErrTaskEnded, task.Module)
			if out.Err != nil {
				err = fmt.Errorf("%w: module %s: %w", ErrTaskEnded, task.Module, out.Err)
			}
			ml.Warn("rebuild ended without a result", "error", out.Err)
			d.Fail(err)
			sum.Skipped = append(sum.Skipped, task.Module)
			sum.Skipped = append(sum.Skipped, d.remaining()...)
			return sum, err
		}
	}
	return sum, nil
}
