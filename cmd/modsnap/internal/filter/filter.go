// Package filter decides which paths of a module take part in change
// detection.
//
// Patterns are doublestar globs matched against the module-relative,
// slash-separated path of an entry. A pattern with no slash that starts
// with "*" (for example "*.iml") matches at any depth; every other pattern
// is anchored at the module root, so "build" excludes the module's own build
// output but not a nested package named build.
//
// The same Filter must be used when a snapshot is built and when it is
// diffed, otherwise excluded entries show up as spurious additions or
// deletions.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are the module-relative patterns that never affect
// staleness: build outputs, native build caches, tests and IDE metadata.
var DefaultExcludes = []string{
	"build",
	".externalNativeBuild",
	"src/test",
	".gitignore",
	"*.iml",
}

// Filter matches paths against a fixed set of exclusion patterns.
type Filter struct {
	patterns []string
}

// New creates a filter from DefaultExcludes plus any extra patterns.
// Invalid patterns are rejected.
func New(extra ...string) (*Filter, error) {
	return NewWithPatterns(append(append([]string{}, DefaultExcludes...), extra...))
}

// NewWithPatterns creates a filter with exactly the given patterns.
func NewWithPatterns(patterns []string) (*Filter, error) {
	f := &Filter{}
	seen := make(map[string]bool)
	for _, p := range patterns {
		p = strings.Trim(filepath.ToSlash(strings.TrimSpace(p)), "/")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if !strings.Contains(p, "/") && strings.HasPrefix(p, "*") && !strings.HasPrefix(p, "**") {
			p = "**/" + p
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// Default returns a filter with DefaultExcludes only.
func Default() *Filter {
	f, err := New()
	if err != nil {
		// DefaultExcludes are constant and valid.
		panic(err)
	}
	return f
}

// Patterns returns the normalized patterns.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}

// IsExcluded reports whether absolutePath, inside the module rooted at
// moduleBasePath, is excluded. The module root itself and paths outside the
// module are never excluded.
func (f *Filter) IsExcluded(absolutePath, moduleBasePath string) bool {
	rel, ok := relative(absolutePath, moduleBasePath)
	if !ok {
		return false
	}
	return f.MatchRel(rel)
}

// MatchRel reports whether a module-relative slash path is excluded, either
// directly or because one of its parent directories is.
func (f *Filter) MatchRel(rel string) bool {
	if f == nil || rel == "" || rel == "." {
		return false
	}
	for i := 0; i <= len(rel); i++ {
		if i < len(rel) && rel[i] != '/' {
			continue
		}
		if f.matchOne(rel[:i]) {
			return true
		}
	}
	return false
}

func (f *Filter) matchOne(rel string) bool {
	for _, p := range f.patterns {
		if doublestar.MatchUnvalidated(p, rel) {
			return true
		}
	}
	return false
}

func relative(path, base string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}
