package detector

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

// Result is the outcome of checking one module.
type Result struct {
	Module       string
	Root         string
	SnapshotPath string

	// Snapshot mirrors the module's tree as observed during the check.
	// It is nil when Err is set.
	Snapshot *snapshot.DirNode

	// Modified is true when any accepted path changed, or on bootstrap.
	Modified bool

	// Bootstrap is true when no usable prior snapshot existed.
	Bootstrap bool

	// Recovered holds the corrupt-snapshot or structural error that made the
	// check fall back to a bootstrap.
	Recovered error

	Changes *ChangeSet

	// Err is set when the module could not be checked.
	Err error

	committed bool
}

// Stale reports whether the module needs a rebuild.
func (r *Result) Stale() bool {
	return r.Err == nil && (r.Modified || r.Bootstrap)
}

// Committed reports whether Rewrite has succeeded.
func (r *Result) Committed() bool { return r.committed }

// Rewrite persists the updated snapshot to the module's snapshot file.
func (r *Result) Rewrite() error {
	if r.Snapshot == nil {
		return fmt.Errorf("module %s: no snapshot to write", r.Module)
	}
	if err := snapshot.Save(r.SnapshotPath, r.Snapshot); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	r.committed = true
	return nil
}

// Report holds the results of one check pass in input order.
type Report struct {
	Results []*Result
}

// Stale returns the results of modules that need a rebuild.
func (rp *Report) Stale() []*Result {
	var out []*Result
	for _, r := range rp.Results {
		if r.Stale() {
			out = append(out, r)
		}
	}
	return out
}

// StaleNames returns the names of modules that need a rebuild.
func (rp *Report) StaleNames() []string {
	stale := rp.Stale()
	names := make([]string, len(stale))
	for i, r := range stale {
		names[i] = r.Module
	}
	return names
}

// Failed returns the results of modules that could not be checked.
func (rp *Report) Failed() []*Result {
	var out []*Result
	for _, r := range rp.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Get returns the result for a module.
func (rp *Report) Get(module string) (*Result, bool) {
	for _, r := range rp.Results {
		if r.Module == module {
			return r, true
		}
	}
	return nil, false
}

// Err returns a *BatchError describing every failed module, or nil.
func (rp *Report) Err() error {
	failed := rp.Failed()
	if len(failed) == 0 {
		return nil
	}
	be := &BatchError{}
	for _, r := range failed {
		be.Errors = append(be.Errors, &ModuleError{Module: r.Module, Err: r.Err})
	}
	return be
}

// IsBatchError reports whether err carries per-module failures and returns them.
func IsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	ok := errors.As(err, &be)
	return be, ok
}
