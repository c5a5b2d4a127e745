// Package detector compares a module's live directory tree against its
// persisted snapshot and decides which modules need a rebuild.
package detector

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
	"github.com/albertocavalcante/modsnap/internal/log"
)

// entry is one accepted child of a live directory.
type entry struct {
	name string
	abs  string
	rel  string
	info fs.FileInfo
}

// walker holds what every level of a build or diff pass shares.
type walker struct {
	base   string
	filter *filter.Filter
	log    *slog.Logger
}

func newWalker(base string, f *filter.Filter, l *slog.Logger) *walker {
	if l == nil {
		l = log.Discard()
	}
	return &walker{base: filepath.Clean(base), filter: f, log: l}
}

// Build constructs a fresh snapshot of dir. Paths are filtered relative to
// moduleBase, which is normally dir itself.
func Build(dir, moduleBase string, f *filter.Filter) (*snapshot.DirNode, error) {
	return newWalker(moduleBase, f, nil).build(filepath.Clean(dir))
}

func (w *walker) build(dir string) (*snapshot.DirNode, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingModuleRoot, dir)
	}
	if err != nil {
		return nil, ioErr("stat", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: module root %s is not a directory", ErrStructuralViolation, dir)
	}
	node := snapshot.NewDir(filepath.Base(dir))
	if err := w.fill(node, dir, w.rel(dir)); err != nil {
		return nil, err
	}
	return node, nil
}

// fill adds every accepted entry below dir to node.
func (w *walker) fill(node *snapshot.DirNode, dir, rel string) error {
	entries, err := w.list(dir, rel)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child, err := w.fresh(e)
		if err != nil {
			return err
		}
		node.Add(child)
	}
	return nil
}

// fresh builds a new node for a live entry, recursing into directories.
func (w *walker) fresh(e entry) (snapshot.Node, error) {
	if !e.info.IsDir() {
		return snapshot.FileFromInfo(e.info), nil
	}
	d := snapshot.NewDir(e.name)
	if err := w.fill(d, e.abs, e.rel); err != nil {
		return nil, err
	}
	return d, nil
}

// list returns the accepted entries of dir: regular files and directories
// not excluded by the filter. Links to files are followed; links to
// directories become file entries describing the link. Dangling links,
// special files and names that are not valid UTF-8 are skipped.
func (w *walker) list(dir, rel string) ([]entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioErr("list", dir, err)
	}

	out := make([]entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		abs := filepath.Join(dir, name)
		if w.filter.IsExcluded(abs, w.base) {
			continue
		}

		if !utf8.ValidString(name) {
			// Snapshot names are UTF-8; such an entry could never be read back.
			w.log.Warn("skipping entry with a non UTF-8 name", "dir", dir, "name", name)
			continue
		}

		info, err := os.Stat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, ioErr("stat", abs, err)
		}
		switch {
		case info.IsDir() && de.Type()&fs.ModeSymlink != 0:
			// Never descend through a directory link: it may point at an
			// ancestor. The link itself is recorded as a file.
			if info, err = os.Lstat(abs); err != nil {
				return nil, ioErr("lstat", abs, err)
			}
		case !info.IsDir() && !info.Mode().IsRegular():
			continue
		}
		out = append(out, entry{name: name, abs: abs, rel: path.Join(rel, name), info: info})
	}
	return out, nil
}

// rel returns the module-relative slash path of abs, "" for the root.
func (w *walker) rel(abs string) string {
	r, err := filepath.Rel(w.base, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}
