package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptSnapshot is returned for malformed or truncated snapshot data:
	// unknown type tags, child length mismatches, bad framing or checksum.
	ErrCorruptSnapshot = errors.New("corrupt snapshot")

	// ErrUnexpectedNodeType is returned when a decoded node is not the
	// variant expected at that position.
	ErrUnexpectedNodeType = errors.New("unexpected snapshot node type")

	// ErrUnsupportedVersion is returned for snapshot files written with a
	// format version this build cannot read. It also matches ErrCorruptSnapshot.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported format version", ErrCorruptSnapshot)

	// ErrNoSnapshot is returned by Load when no snapshot file exists.
	ErrNoSnapshot = errors.New("no snapshot")
)

// corruptf wraps ErrCorruptSnapshot with positional detail.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}
