package modules

import (
	"fmt"
)

// Graph resolves the modules a root module depends on.
type Graph interface {
	// Resolve returns every module reachable from root, excluding root, in
	// discovery order. Cycles are tolerated.
	Resolve(root string) ([]string, error)
}

// DepsFunc returns the direct dependencies of a module.
type DepsFunc func(module string) ([]string, error)

// Resolve walks deps depth-first from root with a visited set.
func Resolve(root string, deps DepsFunc) ([]string, error) {
	visited := map[string]bool{root: true}
	var order []string

	var walk func(module string) error
	walk = func(module string) error {
		direct, err := deps(module)
		if err != nil {
			return fmt.Errorf("resolve dependencies of %s: %w", module, err)
		}
		for _, d := range direct {
			if visited[d] {
				continue
			}
			visited[d] = true
			order = append(order, d)
			if err := walk(d); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return order, nil
}

// StaticGraph is a dependency graph declared in configuration.
type StaticGraph map[string][]string

// Resolve implements Graph.
func (g StaticGraph) Resolve(root string) ([]string, error) {
	return Resolve(root, func(module string) ([]string, error) {
		return g[module], nil
	})
}

// Graph sources accepted by NewGraph.
const (
	SourceGradle = "gradle"
	SourceStatic = "static"
)

// NewGraph returns the graph for source. An empty source picks the Gradle
// build files.
func NewGraph(source string, layout Layout, static map[string][]string) (Graph, error) {
	switch source {
	case "", SourceGradle:
		return NewGradleGraph(layout), nil
	case SourceStatic:
		return StaticGraph(static), nil
	default:
		return nil, fmt.Errorf("unknown graph source %q (want %s or %s)", source, SourceGradle, SourceStatic)
	}
}
