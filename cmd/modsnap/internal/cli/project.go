package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/detector"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/filter"
	"github.com/albertocavalcante/modsnap/cmd/modsnap/internal/modules"
	"github.com/albertocavalcante/modsnap/internal/log"
	"github.com/albertocavalcante/modsnap/pkg/config"
	"github.com/albertocavalcante/modsnap/pkg/util"
)

// project bundles what every command needs: configuration, the module
// layout and the exclusion filter.
type project struct {
	root   string
	cfg    *config.Config
	layout modules.Layout
	filter *filter.Filter
}

// loadProject resolves the project root and loads its configuration.
func loadProject() (*project, error) {
	root := globalFlags.project
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		root = config.FindProjectRoot(wd)
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("invalid project %s: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("project must be a directory: %s", root)
	}

	var cfg *config.Config
	if globalFlags.config != "" {
		cfg, err = config.LoadWithFile(globalFlags.config)
	} else {
		cfg, err = config.LoadFrom(root)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	layout := modules.NewLayout(root)
	if cfg.Snapshot.DirName != "" {
		layout.SnapshotDirName = cfg.Snapshot.DirName
	}

	// A nested module keeps its snapshot inside the parent module, so the
	// snapshot directory is always excluded.
	patterns := append(slices.Clone(cfg.Exclude.Patterns), layout.SnapshotDirName)
	var f *filter.Filter
	if cfg.UseDefaultExcludes() {
		f, err = filter.New(patterns...)
	} else {
		f, err = filter.NewWithPatterns(patterns)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("project loaded", "root", root, "excludes", f.Patterns())
	return &project{root: root, cfg: cfg, layout: layout, filter: f}, nil
}

// moduleNames normalizes module arguments. Without arguments every module
// included by the settings script is used, falling back to the [modules]
// table of the config.
func (p *project) moduleNames(args []string) ([]string, error) {
	var names []string
	for _, a := range args {
		if n := modules.Normalize(a); n != "" {
			names = append(names, n)
		}
	}
	if len(names) > 0 {
		return util.Dedupe(names), nil
	}

	discovered, err := modules.Discover(p.root)
	if err == nil && len(discovered) > 0 {
		return discovered, nil
	}
	if len(p.cfg.Modules) > 0 {
		return util.SortedKeys(p.cfg.Modules), nil
	}
	if err != nil {
		return nil, fmt.Errorf("no modules given and none discovered: %w", err)
	}
	return nil, fmt.Errorf("no modules given and none discovered in %s", p.root)
}

// graph returns the configured dependency graph.
func (p *project) graph() (modules.Graph, error) {
	return modules.NewGraph(p.cfg.Graph.Source, p.layout, p.cfg.StaticDeps())
}

// closure returns the modules to process for a root module: its transitive
// dependencies, followed by root itself when includeRoot is set.
func (p *project) closure(root string, includeRoot bool) ([]string, error) {
	root = modules.Normalize(root)
	g, err := p.graph()
	if err != nil {
		return nil, err
	}
	deps, err := g.Resolve(root)
	if err != nil {
		return nil, err
	}
	if includeRoot {
		deps = append(deps, root)
	}
	return deps, nil
}

func (p *project) checker(policy detector.CommitPolicy, jobs int) *detector.Checker {
	if jobs <= 0 {
		jobs = p.cfg.Check.Jobs
	}
	return detector.NewChecker(p.layout, p.filter,
		detector.WithCommitPolicy(policy),
		detector.WithJobs(jobs),
	)
}

// ModuleErrorOutput is the JSON form of a per-module failure.
type ModuleErrorOutput struct {
	Module string `json:"module"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

func moduleErrors(report *detector.Report) []ModuleErrorOutput {
	out := []ModuleErrorOutput{}
	for _, r := range report.Failed() {
		out = append(out, ModuleErrorOutput{
			Module: r.Module,
			Kind:   string(detector.Classify(r.Err)),
			Error:  r.Err.Error(),
		})
	}
	return out
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
