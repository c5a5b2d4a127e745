// Package config provides configuration management for modsnap.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/modsnap/config.toml)
//  3. Project config (.modsnap/config.toml or modsnap.toml)
//  4. Environment variables (MODSNAP_*)
//  5. CLI flags (highest priority)
package config

import (
	"fmt"
	"time"
)

// Config is the main configuration struct for modsnap.
type Config struct {
	// Exclude configures which paths never affect staleness.
	Exclude ExcludeConfig `toml:"exclude"`

	// Build configures how stale modules are rebuilt.
	Build BuildConfig `toml:"build"`

	// Check configures the detection pass.
	Check CheckConfig `toml:"check"`

	// Watch configures watch mode.
	Watch WatchConfig `toml:"watch"`

	// Graph configures where module dependencies come from.
	Graph GraphConfig `toml:"graph"`

	// Snapshot configures where snapshot files are stored.
	Snapshot SnapshotConfig `toml:"snapshot"`

	// Modules declares per-module settings, keyed by module name.
	Modules map[string]ModuleConfig `toml:"modules"`
}

// ExcludeConfig lists exclusion patterns.
type ExcludeConfig struct {
	// Patterns are doublestar patterns relative to the module root, added
	// to the built-in defaults.
	Patterns []string `toml:"patterns"`

	// NoDefaults drops the built-in patterns (build, src/test, *.iml, ...).
	NoDefaults *bool `toml:"no_defaults"`
}

// BuildConfig holds rebuild settings.
type BuildConfig struct {
	// Task is the task template; "{module}" expands to the module name.
	Task string `toml:"task"`

	// Command overrides build tool discovery (gradlew, then gradle on PATH).
	Command string `toml:"command"`

	// Args are passed to the build tool before the task.
	Args []string `toml:"args"`

	// Env adds KEY=VALUE pairs to the build tool environment.
	Env []string `toml:"env"`
}

// CheckConfig holds detection settings.
type CheckConfig struct {
	// Jobs is how many modules are checked concurrently.
	Jobs int `toml:"jobs"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// DebounceMS is the quiet period before a batch of changes is handled.
	DebounceMS int `toml:"debounce_ms"`
}

// GraphConfig selects the dependency graph source.
type GraphConfig struct {
	// Source is "gradle" (parse build scripts) or "static" (use [modules]).
	Source string `toml:"source"`
}

// SnapshotConfig holds snapshot storage settings.
type SnapshotConfig struct {
	// DirName is the directory next to each module that holds its snapshot.
	DirName string `toml:"dir_name"`
}

// ModuleConfig holds settings for one module.
type ModuleConfig struct {
	// Deps are the module's direct dependencies for the static graph.
	Deps []string `toml:"deps"`
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	falseVal := false
	return &Config{
		Exclude: ExcludeConfig{
			Patterns:   []string{},
			NoDefaults: &falseVal,
		},
		Build: BuildConfig{
			Task: ":{module}:assemble",
		},
		Check: CheckConfig{
			Jobs: 1,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
		Graph: GraphConfig{
			Source: "gradle",
		},
		Snapshot: SnapshotConfig{
			DirName: "build",
		},
		Modules: map[string]ModuleConfig{},
	}
}

// UseDefaultExcludes reports whether the built-in exclusion patterns apply.
func (c *Config) UseDefaultExcludes() bool {
	return c.Exclude.NoDefaults == nil || !*c.Exclude.NoDefaults
}

// Debounce returns the watch debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// StaticDeps returns the dependency lists declared under [modules].
func (c *Config) StaticDeps() map[string][]string {
	deps := make(map[string][]string, len(c.Modules))
	for name, m := range c.Modules {
		deps[name] = m.Deps
	}
	return deps
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Check.Jobs < 0 {
		return fmt.Errorf("check.jobs must not be negative, got %d", c.Check.Jobs)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative, got %d", c.Watch.DebounceMS)
	}
	switch c.Graph.Source {
	case "gradle", "static":
	default:
		return fmt.Errorf("graph.source must be \"gradle\" or \"static\", got %q", c.Graph.Source)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Exclusion patterns accumulate across layers.
	if len(other.Exclude.Patterns) > 0 {
		c.Exclude.Patterns = append(c.Exclude.Patterns, other.Exclude.Patterns...)
	}
	if other.Exclude.NoDefaults != nil {
		c.Exclude.NoDefaults = other.Exclude.NoDefaults
	}

	if other.Build.Task != "" {
		c.Build.Task = other.Build.Task
	}
	if other.Build.Command != "" {
		c.Build.Command = other.Build.Command
	}
	if len(other.Build.Args) > 0 {
		c.Build.Args = other.Build.Args
	}
	if len(other.Build.Env) > 0 {
		c.Build.Env = append(c.Build.Env, other.Build.Env...)
	}

	if other.Check.Jobs != 0 {
		c.Check.Jobs = other.Check.Jobs
	}
	if other.Watch.DebounceMS != 0 {
		c.Watch.DebounceMS = other.Watch.DebounceMS
	}
	if other.Graph.Source != "" {
		c.Graph.Source = other.Graph.Source
	}
	if other.Snapshot.DirName != "" {
		c.Snapshot.DirName = other.Snapshot.DirName
	}

	if len(other.Modules) > 0 && c.Modules == nil {
		c.Modules = make(map[string]ModuleConfig, len(other.Modules))
	}
	for name, m := range other.Modules {
		c.Modules[name] = m
	}
}
