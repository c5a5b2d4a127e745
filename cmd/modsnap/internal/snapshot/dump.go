package snapshot

import (
	"fmt"
	"path"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/albertocavalcante/modsnap/pkg/util"
)

// Dump renders a tree as one line per node, sorted by path:
//
//	app/
//	app/src/
//	app/src/Main.kt size=120 mtime=1700000000000
func Dump(n Node) string {
	var b strings.Builder
	dumpInto(&b, "", n)
	return b.String()
}

func dumpInto(b *strings.Builder, parent string, n Node) {
	p := path.Join(parent, n.Name())
	switch v := n.(type) {
	case *FileNode:
		fmt.Fprintf(b, "%s size=%d mtime=%d\n", p, v.Size, v.LastModified)
	case *DirNode:
		b.WriteString(p + "/\n")
		for _, name := range util.SortedKeys(v.Children) {
			dumpInto(b, p, v.Children[name])
		}
	}
}

// DiffDump returns a unified diff between the dumps of two trees.
// Either side may be nil. Identical trees produce an empty string.
func DiffDump(oldName string, old Node, newName string, cur Node) (string, error) {
	var a, b []string
	if old != nil {
		a = difflib.SplitLines(Dump(old))
	}
	if cur != nil {
		b = difflib.SplitLines(Dump(cur))
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: oldName,
		ToFile:   newName,
		Context:  2,
	})
}
