package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// Snapshot file layout:
//
//	magic    [4]byte "MSNP"
//	version  u8
//	root     directory node encoding
//	checksum u64, xxHash64 of every preceding byte
const (
	// FormatVersion is the snapshot file format written by this build.
	FormatVersion = 1

	// FileExt is the extension of per-module snapshot files.
	FileExt = ".snapshot"
)

var magic = [4]byte{'M', 'S', 'N', 'P'}

const (
	headerSize   = len(magic) + 1
	checksumSize = u64Size
)

// MarshalFile frames a module root as snapshot file contents.
func MarshalFile(root *DirNode) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("snapshot: cannot marshal nil root")
	}
	buf := make([]byte, 0, headerSize+EncodedSize(root)+checksumSize)
	buf = append(buf, magic[:]...)
	buf = append(buf, FormatVersion)
	buf, err := AppendNode(buf, root)
	if err != nil {
		return nil, err
	}
	return binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(buf)), nil
}

// UnmarshalFile parses snapshot file contents. The root must be a directory
// and the payload must end exactly at the checksum.
func UnmarshalFile(data []byte) (*DirNode, error) {
	if len(data) < headerSize+checksumSize {
		return nil, corruptf("file of %d bytes is too short", len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, corruptf("bad magic %q", data[:len(magic)])
	}
	if v := data[len(magic)]; v != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, v, FormatVersion)
	}

	body := data[:len(data)-checksumSize]
	want := binary.LittleEndian.Uint64(data[len(body):])
	if got := xxhash.Sum64(body); got != want {
		return nil, corruptf("checksum mismatch: got %016x, want %016x", got, want)
	}

	payload := body[headerSize:]
	if len(payload) == 0 || Kind(payload[0]) != KindDir {
		return nil, corruptf("snapshot root is not a directory")
	}
	root, n, err := DecodeDir(payload)
	if err != nil {
		return nil, err
	}
	if n != len(payload) {
		return nil, corruptf("%d trailing bytes after root", len(payload)-n)
	}
	return root, nil
}

// Load reads the snapshot file at path. A missing file returns ErrNoSnapshot.
func Load(path string) (*DirNode, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	root, err := UnmarshalFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// Save writes the snapshot to path atomically: the data goes to a temp file
// in the same directory, is synced, then renamed over path.
func Save(path string, root *DirNode) error {
	data, err := MarshalFile(root)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

// Exists returns true if a snapshot file exists at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes the snapshot file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	return nil
}
