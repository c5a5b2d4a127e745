//go:build !cgo

package modules

import (
	"context"
	"errors"
)

// ErrGradleParserUnavailable is returned when build scripts cannot be parsed
// because the binary was built without cgo.
var ErrGradleParserUnavailable = errors.New("gradle build script parsing requires cgo: rebuild with CGO_ENABLED=1 or set graph.source = \"static\"")

func tokenize(context.Context, []byte, bool) ([]token, error) {
	return nil, ErrGradleParserUnavailable
}
