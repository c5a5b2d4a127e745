package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

// diffState accumulates the outcome of one diff pass. It is threaded through
// the recursion instead of living in shared state, so passes over different
// modules never see each other's results.
type diffState struct {
	modified bool
	changes  *ChangeSet
}

func (st *diffState) mark(group *[]string, rel string) {
	st.modified = true
	*group = append(*group, rel)
}

// Diff compares the live directory dir with old, the module's persisted
// root, and rewrites old in place to mirror the current disk state. It
// reports whether any accepted entry was added, deleted, changed kind, or
// changed size or modification time.
//
// On error old may be partially updated and must be discarded.
func Diff(dir string, old snapshot.Node, moduleBase string, f *filter.Filter) (bool, *ChangeSet, error) {
	return diff(dir, old, newWalker(moduleBase, f, nil))
}

func diff(dir string, old snapshot.Node, w *walker) (bool, *ChangeSet, error) {
	dir = filepath.Clean(dir)
	root, ok := old.(*snapshot.DirNode)
	if !ok || root == nil {
		return false, nil, fmt.Errorf("%w: persisted root of %s is not a directory", ErrStructuralViolation, dir)
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil, fmt.Errorf("%w: %s", ErrMissingModuleRoot, dir)
	}
	if err != nil {
		return false, nil, ioErr("stat", dir, err)
	}
	if !info.IsDir() {
		return false, nil, fmt.Errorf("%w: module root %s changed from directory to file", ErrStructuralViolation, dir)
	}
	if root.Name() != filepath.Base(dir) {
		return false, nil, fmt.Errorf("%w: snapshot root %q does not match directory %q",
			ErrStructuralViolation, root.Name(), filepath.Base(dir))
	}

	st := &diffState{changes: NewChangeSet()}
	if err := w.diffDir(root, dir, w.rel(dir), st); err != nil {
		return false, nil, err
	}
	st.changes.sort()
	return st.modified, st.changes, nil
}

// diffDir reconciles one directory level and recurses into directories that
// exist on both sides.
func (w *walker) diffDir(node *snapshot.DirNode, dir, rel string, st *diffState) error {
	live, err := w.list(dir, rel)
	if err != nil {
		return err
	}

	// unmatched starts as every old child; matched entries are removed so
	// whatever remains afterwards was deleted.
	unmatched := node.Children
	next := make(map[string]snapshot.Node, len(live))

	for _, e := range live {
		prev, found := unmatched[e.name]
		if found {
			delete(unmatched, e.name)
		}

		switch {
		case !found:
			child, err := w.fresh(e)
			if err != nil {
				return err
			}
			w.log.Debug("entry added", "path", e.rel, "kind", child.Kind())
			st.mark(&st.changes.Added, e.rel)
			next[e.name] = child

		case e.info.IsDir():
			if prevDir, ok := prev.(*snapshot.DirNode); ok {
				if err := w.diffDir(prevDir, e.abs, e.rel, st); err != nil {
					return err
				}
				next[e.name] = prevDir
				continue
			}
			child, err := w.fresh(e)
			if err != nil {
				return err
			}
			w.log.Debug("file changed to directory", "path", e.rel)
			st.mark(&st.changes.TypeChanged, e.rel)
			next[e.name] = child

		default:
			prevFile, ok := prev.(*snapshot.FileNode)
			if !ok {
				w.log.Debug("directory changed to file", "path", e.rel)
				st.mark(&st.changes.TypeChanged, e.rel)
				next[e.name] = snapshot.FileFromInfo(e.info)
				continue
			}
			if prevFile.MatchesInfo(e.info) {
				next[e.name] = prevFile
				continue
			}
			w.log.Debug("file modified", "path", e.rel)
			st.mark(&st.changes.Modified, e.rel)
			next[e.name] = snapshot.FileFromInfo(e.info)
		}
	}

	for name := range unmatched {
		p := joinRel(rel, name)
		w.log.Debug("entry deleted", "path", p)
		st.mark(&st.changes.Deleted, p)
	}

	node.Children = next
	return nil
}

func joinRel(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}
