package snapshot

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/albertocavalcante/modsnap/pkg/util"
)

// Node encoding, little-endian:
//
//	name header: nameLength u16 | nameBytes [nameLength]
//	file:        tag=1 | name header | size u64 | lastModified u64
//	dir:         tag=0 | childrenByteLength u64 | name header | children...
//
// Children are written in name order so an unchanged tree re-encodes to the
// same bytes.
const (
	tagSize      = 1
	nameLenSize  = 2
	u64Size      = 8
	fileTailSize = 2 * u64Size

	// MaxNameLength is the longest base name the format can hold.
	MaxNameLength = math.MaxUint16
)

// Encode returns the binary encoding of n and its subtree.
func Encode(n Node) ([]byte, error) {
	return AppendNode(make([]byte, 0, EncodedSize(n)), n)
}

// EncodedSize returns the exact number of bytes Encode produces for n.
func EncodedSize(n Node) int {
	switch v := n.(type) {
	case *FileNode:
		return tagSize + nameLenSize + len(v.name) + fileTailSize
	case *DirNode:
		return tagSize + u64Size + nameLenSize + len(v.name) + childrenSize(v)
	default:
		return 0
	}
}

func childrenSize(d *DirNode) int {
	total := 0
	for _, child := range d.Children {
		total += EncodedSize(child)
	}
	return total
}

// AppendNode appends the encoding of n to dst.
func AppendNode(dst []byte, n Node) ([]byte, error) {
	var err error
	switch v := n.(type) {
	case *FileNode:
		dst = append(dst, byte(KindFile))
		if dst, err = appendName(dst, v.name); err != nil {
			return nil, err
		}
		dst = binary.LittleEndian.AppendUint64(dst, v.Size)
		return binary.LittleEndian.AppendUint64(dst, v.LastModified), nil

	case *DirNode:
		dst = append(dst, byte(KindDir))
		lenAt := len(dst)
		dst = binary.LittleEndian.AppendUint64(dst, 0)
		if dst, err = appendName(dst, v.name); err != nil {
			return nil, err
		}
		start := len(dst)
		for _, name := range util.SortedKeys(v.Children) {
			child := v.Children[name]
			if child.Name() != name {
				return nil, fmt.Errorf("snapshot: child %q stored under key %q", child.Name(), name)
			}
			if dst, err = AppendNode(dst, child); err != nil {
				return nil, err
			}
		}
		binary.LittleEndian.PutUint64(dst[lenAt:], uint64(len(dst)-start))
		return dst, nil

	case nil:
		return nil, fmt.Errorf("snapshot: cannot encode nil node")
	default:
		return nil, fmt.Errorf("snapshot: cannot encode node of type %T", n)
	}
}

func appendName(dst []byte, name string) ([]byte, error) {
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("snapshot: name of %d bytes exceeds %d", len(name), MaxNameLength)
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(name)))
	return append(dst, name...), nil
}

// Decode reads one node, dispatching on its leading type tag. It returns
// the node and the number of bytes consumed.
func Decode(buf []byte) (Node, int, error) {
	if len(buf) < tagSize {
		return nil, 0, corruptf("missing type tag")
	}
	switch Kind(buf[0]) {
	case KindDir:
		return DecodeDir(buf)
	case KindFile:
		return DecodeFile(buf)
	default:
		return nil, 0, corruptf("unknown type tag %d", buf[0])
	}
}

// DecodeFile reads a file node. A leading tag other than the file tag
// fails with ErrUnexpectedNodeType.
func DecodeFile(buf []byte) (*FileNode, int, error) {
	if len(buf) < tagSize {
		return nil, 0, corruptf("missing type tag")
	}
	if Kind(buf[0]) != KindFile {
		return nil, 0, fmt.Errorf("%w: want %s, got tag %d", ErrUnexpectedNodeType, KindFile, buf[0])
	}
	pos := tagSize
	name, n, err := readName(buf[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n
	if len(buf)-pos < fileTailSize {
		return nil, 0, corruptf("file %q truncated", name)
	}
	f := &FileNode{
		name:         name,
		Size:         binary.LittleEndian.Uint64(buf[pos:]),
		LastModified: binary.LittleEndian.Uint64(buf[pos+u64Size:]),
	}
	return f, pos + fileTailSize, nil
}

// DecodeDir reads a directory node and its subtree. Children are read until
// exactly the declared childrenByteLength has been consumed.
func DecodeDir(buf []byte) (*DirNode, int, error) {
	if len(buf) < tagSize {
		return nil, 0, corruptf("missing type tag")
	}
	if Kind(buf[0]) != KindDir {
		return nil, 0, fmt.Errorf("%w: want %s, got tag %d", ErrUnexpectedNodeType, KindDir, buf[0])
	}
	pos := tagSize
	if len(buf)-pos < u64Size {
		return nil, 0, corruptf("directory header truncated")
	}
	childLen := binary.LittleEndian.Uint64(buf[pos:])
	pos += u64Size

	name, n, err := readName(buf[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n

	if childLen > uint64(len(buf)-pos) {
		return nil, 0, corruptf("directory %q declares %d child bytes, %d available", name, childLen, len(buf)-pos)
	}
	end := pos + int(childLen)

	d := NewDir(name)
	for pos < end {
		child, used, err := Decode(buf[pos:end])
		if err != nil {
			return nil, 0, fmt.Errorf("in directory %q: %w", name, err)
		}
		if _, dup := d.Children[child.Name()]; dup {
			return nil, 0, corruptf("directory %q has duplicate child %q", name, child.Name())
		}
		d.Children[child.Name()] = child
		pos += used
	}
	return d, end, nil
}

// readName reads a name header and validates the name.
func readName(buf []byte) (string, int, error) {
	if len(buf) < nameLenSize {
		return "", 0, corruptf("name length truncated")
	}
	n := int(binary.LittleEndian.Uint16(buf))
	if len(buf)-nameLenSize < n {
		return "", 0, corruptf("name of %d bytes truncated", n)
	}
	raw := buf[nameLenSize : nameLenSize+n]
	if !utf8.Valid(raw) {
		return "", 0, corruptf("name is not valid UTF-8")
	}
	name := string(raw)
	if name == "" || strings.Contains(name, "/") {
		return "", 0, corruptf("invalid entry name %q", name)
	}
	return name, nameLenSize + n, nil
}
