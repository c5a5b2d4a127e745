// Package snapshot models the persisted state of a module's directory tree
// and its binary encoding.
//
// A snapshot is a tree of nodes. Files carry size and modification time,
// which is all the change detector compares; contents are never hashed.
// Directories carry their immediate children keyed by base name.
package snapshot

import (
	"io/fs"
	"maps"
)

// Kind is the node variant. Its value is the node's type tag on disk.
type Kind uint8

const (
	// KindDir tags a directory node.
	KindDir Kind = 0
	// KindFile tags a file node.
	KindFile Kind = 1
)

// String returns "dir" or "file".
func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Node is a file or directory in a snapshot tree.
type Node interface {
	// Name is the base name of the entry, never containing a separator.
	Name() string
	Kind() Kind
}

// FileNode records the metadata used to decide whether a file changed.
type FileNode struct {
	name         string
	Size         uint64
	LastModified uint64 // epoch milliseconds
}

// NewFile creates a file node.
func NewFile(name string, size, lastModified uint64) *FileNode {
	return &FileNode{name: name, Size: size, LastModified: lastModified}
}

// FileFromInfo creates a file node from live file info.
func FileFromInfo(info fs.FileInfo) *FileNode {
	size := info.Size()
	if size < 0 {
		size = 0
	}
	mtime := info.ModTime().UnixMilli()
	if mtime < 0 {
		mtime = 0
	}
	return NewFile(info.Name(), uint64(size), uint64(mtime))
}

// Name implements Node.
func (f *FileNode) Name() string { return f.name }

// Kind implements Node.
func (f *FileNode) Kind() Kind { return KindFile }

// Matches reports whether the stored metadata equals the given size and
// modification time. Identical metadata means unchanged even if the content
// differs.
func (f *FileNode) Matches(size, lastModified uint64) bool {
	return f.Size == size && f.LastModified == lastModified
}

// MatchesInfo is Matches for live file info.
func (f *FileNode) MatchesInfo(info fs.FileInfo) bool {
	live := FileFromInfo(info)
	return f.Matches(live.Size, live.LastModified)
}

// DirNode is a directory with its immediate children.
type DirNode struct {
	name     string
	Children map[string]Node
}

// NewDir creates an empty directory node.
func NewDir(name string) *DirNode {
	return &DirNode{name: name, Children: make(map[string]Node)}
}

// Name implements Node.
func (d *DirNode) Name() string { return d.name }

// Kind implements Node.
func (d *DirNode) Kind() Kind { return KindDir }

// Add inserts or replaces a child, keyed by its name.
func (d *DirNode) Add(n Node) {
	if d.Children == nil {
		d.Children = make(map[string]Node)
	}
	d.Children[n.Name()] = n
}

// Get returns the child with the given name.
func (d *DirNode) Get(name string) (Node, bool) {
	if d == nil || d.Children == nil {
		return nil, false
	}
	n, ok := d.Children[name]
	return n, ok
}

// Len returns the number of immediate children.
func (d *DirNode) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Children)
}

// Count returns the number of files and directories below d, d excluded.
func (d *DirNode) Count() (files, dirs int) {
	if d == nil {
		return 0, 0
	}
	for _, child := range d.Children {
		switch c := child.(type) {
		case *FileNode:
			files++
		case *DirNode:
			dirs++
			f, sub := c.Count()
			files += f
			dirs += sub
		}
	}
	return files, dirs
}

// Equal reports whether two trees have the same names, child sets and
// file metadata. Child order is irrelevant.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Name() != b.Name() {
		return false
	}
	switch av := a.(type) {
	case *FileNode:
		bv := b.(*FileNode)
		return av.Matches(bv.Size, bv.LastModified)
	case *DirNode:
		bv := b.(*DirNode)
		if len(av.Children) != len(bv.Children) {
			return false
		}
		return maps.EqualFunc(av.Children, bv.Children, Equal)
	}
	return false
}
