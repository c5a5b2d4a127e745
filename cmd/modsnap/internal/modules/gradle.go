package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Build and settings file names, Groovy first.
var (
	buildFiles    = []string{"build.gradle", "build.gradle.kts"}
	settingsFiles = []string{"settings.gradle", "settings.gradle.kts"}
)

// Dependency configurations that link one module to another inside a
// component { dependencies { ... } } block.
var depConfigurations = map[string]bool{
	"implementation": true,
	"interfaceApi":   true,
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// GradleGraph reads module dependencies from Gradle build scripts.
type GradleGraph struct {
	layout Layout
}

// NewGradleGraph creates a graph over the build scripts of layout.
func NewGradleGraph(layout Layout) *GradleGraph {
	return &GradleGraph{layout: layout}
}

// Resolve implements Graph.
func (g *GradleGraph) Resolve(root string) ([]string, error) {
	return Resolve(root, g.DirectDeps)
}

// DirectDeps returns the modules declared in module's component
// dependencies block. A module without a build script has none.
func (g *GradleGraph) DirectDeps(module string) ([]string, error) {
	path, src, err := readFirst(g.layout.ModuleRoot(module), buildFiles)
	if err != nil || path == "" {
		return nil, err
	}
	toks, err := tokenize(context.Background(), src, strings.HasSuffix(path, ".kts"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return componentDeps(toks), nil
}

// Discover lists the modules included by the project's settings script.
func Discover(projectRoot string) ([]string, error) {
	path, src, err := readFirst(projectRoot, settingsFiles)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("no settings.gradle in %s", projectRoot)
	}
	toks, err := tokenize(context.Background(), src, strings.HasSuffix(path, ".kts"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return includes(toks), nil
}

// readFirst reads the first of names that exists in dir. It returns an empty
// path when none does.
func readFirst(dir string, names []string) (string, []byte, error) {
	for _, name := range names {
		p := filepath.Join(dir, name)
		src, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		return p, src, nil
	}
	return "", nil, nil
}

// componentDeps extracts module names from
//
//	component { dependencies { implementation 'group:module:version' } }
//
// The module is the second colon-separated segment of the coordinate.
func componentDeps(toks []token) []string {
	var (
		blocks  []string
		prev    token
		pending bool
		deps    []string
		seen    = map[string]bool{}
	)

	inDeps := func() bool {
		n := len(blocks)
		return n >= 2 && blocks[n-2] == "component" && blocks[n-1] == "dependencies"
	}

	for _, t := range toks {
		switch {
		case t.kind == tokPunct && t.text == "{":
			name := ""
			if prev.kind == tokIdent {
				name = prev.text
			}
			blocks = append(blocks, name)
			pending = false
		case t.kind == tokPunct && t.text == "}":
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
			pending = false
		case !inDeps():
		case t.kind == tokIdent && depConfigurations[t.text]:
			pending = true
		case t.kind == tokString && pending:
			if m := coordinateModule(t.text); m != "" && !seen[m] {
				seen[m] = true
				deps = append(deps, m)
			}
			pending = false
		case t.kind == tokPunct && t.text == "(":
		default:
			pending = false
		}
		prev = t
	}
	return deps
}

// includes extracts the project paths passed to include in a settings script.
func includes(toks []token) []string {
	var (
		out     []string
		pending bool
	)
	for _, t := range toks {
		switch {
		case t.kind == tokIdent && t.text == "include":
			pending = true
		case pending && t.kind == tokString:
			if m := Normalize(t.text); m != "" {
				out = append(out, m)
			}
		case pending && t.kind == tokPunct && (t.text == "," || t.text == "(" || t.text == ")"):
		default:
			pending = false
		}
	}
	return out
}

func coordinateModule(coord string) string {
	parts := strings.Split(coord, ":")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// classify turns the text of a leaf syntax node into a token.
func classify(text string) token {
	switch text {
	case "{", "}", "(", ")", ",":
		return token{kind: tokPunct, text: text}
	}
	return token{kind: tokIdent, text: text}
}

// unquote strips Groovy and Kotlin string delimiters.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}
