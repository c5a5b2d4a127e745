package detector

import (
	"path"
	"slices"
)

// ChangeSet lists the module-relative, slash-separated paths that made a
// module stale. Paths of added or deleted directories are reported once for
// the directory, not for each entry below it.
type ChangeSet struct {
	Added       []string `json:"added"`
	Modified    []string `json:"modified"`
	Deleted     []string `json:"deleted"`
	TypeChanged []string `json:"type_changed"`
}

// NewChangeSet creates an empty ChangeSet.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:       []string{},
		Modified:    []string{},
		Deleted:     []string{},
		TypeChanged: []string{},
	}
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return cs.TotalChanges() == 0
}

// TotalChanges returns the total number of changed paths.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted) + len(cs.TypeChanged)
}

// AffectedDirs returns sorted unique parent directories of the changes.
// The module root is reported as ".".
func (cs *ChangeSet) AffectedDirs() []string {
	if cs == nil {
		return nil
	}

	dirs := make(map[string]struct{})
	for _, group := range [][]string{cs.Added, cs.Modified, cs.Deleted, cs.TypeChanged} {
		for _, p := range group {
			dirs[path.Dir(p)] = struct{}{}
		}
	}

	result := make([]string, 0, len(dirs))
	for dir := range dirs {
		result = append(result, dir)
	}
	slices.Sort(result)
	return result
}

// sort sorts all slices for deterministic output.
func (cs *ChangeSet) sort() {
	if cs == nil {
		return
	}
	slices.Sort(cs.Added)
	slices.Sort(cs.Modified)
	slices.Sort(cs.Deleted)
	slices.Sort(cs.TypeChanged)
}
