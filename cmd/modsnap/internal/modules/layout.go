// Package modules maps module names to directories and snapshot files and
// resolves the dependency graph between modules.
package modules

import (
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/snapshot"
)

// DefaultSnapshotDirName is the directory, next to a module, that holds its
// snapshot file.
const DefaultSnapshotDirName = "build"

// Layout locates modules inside a project.
type Layout struct {
	ProjectRoot     string
	SnapshotDirName string
}

// NewLayout creates a layout rooted at projectRoot.
func NewLayout(projectRoot string) Layout {
	return Layout{ProjectRoot: filepath.Clean(projectRoot), SnapshotDirName: DefaultSnapshotDirName}
}

// ModuleRoot returns the directory of module. Gradle-style paths such as
// ":feature:login" map to nested directories.
func (l Layout) ModuleRoot(module string) string {
	parts := strings.FieldsFunc(module, func(r rune) bool { return r == ':' })
	return filepath.Join(append([]string{l.ProjectRoot}, parts...)...)
}

// SnapshotPath returns <parent of module root>/<SnapshotDirName>/<base>.snapshot.
func (l Layout) SnapshotPath(module string) string {
	root := l.ModuleRoot(module)
	dirName := l.SnapshotDirName
	if dirName == "" {
		dirName = DefaultSnapshotDirName
	}
	return filepath.Join(filepath.Dir(root), dirName, filepath.Base(root)+snapshot.FileExt)
}

// Normalize strips the leading colon of a Gradle project path.
func Normalize(module string) string {
	return strings.TrimPrefix(strings.TrimSpace(module), ":")
}
