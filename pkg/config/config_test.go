package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// isolate points the global config at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Build.Task != ":{module}:assemble" {
		t.Errorf("default task = %q", cfg.Build.Task)
	}
	if cfg.Check.Jobs != 1 {
		t.Errorf("default jobs = %d, want 1", cfg.Check.Jobs)
	}
	if cfg.Debounce() != 500*time.Millisecond {
		t.Errorf("default debounce = %v", cfg.Debounce())
	}
	if cfg.Graph.Source != "gradle" || cfg.Snapshot.DirName != "build" {
		t.Errorf("defaults = %+v %+v", cfg.Graph, cfg.Snapshot)
	}
	if !cfg.UseDefaultExcludes() {
		t.Error("default excludes should apply by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative jobs", func(c *Config) { c.Check.Jobs = -1 }},
		{"negative debounce", func(c *Config) { c.Watch.DebounceMS = -5 }},
		{"unknown graph source", func(c *Config) { c.Graph.Source = "maven" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	base.Exclude.Patterns = []string{"*.log"}

	trueVal := true
	other := &Config{
		Exclude: ExcludeConfig{Patterns: []string{"docs"}, NoDefaults: &trueVal},
		Build:   BuildConfig{Task: ":{module}:build", Args: []string{"--offline"}},
		Check:   CheckConfig{Jobs: 4},
		Modules: map[string]ModuleConfig{"app": {Deps: []string{"core"}}},
	}
	base.Merge(other)
	base.Merge(nil)

	if !slices.Equal(base.Exclude.Patterns, []string{"*.log", "docs"}) {
		t.Errorf("patterns = %v, want accumulated", base.Exclude.Patterns)
	}
	if base.UseDefaultExcludes() {
		t.Error("no_defaults should be taken from the later layer")
	}
	if base.Build.Task != ":{module}:build" || !slices.Equal(base.Build.Args, []string{"--offline"}) {
		t.Errorf("build = %+v", base.Build)
	}
	if base.Check.Jobs != 4 {
		t.Errorf("jobs = %d, want 4", base.Check.Jobs)
	}
	if base.Watch.DebounceMS != 500 {
		t.Errorf("unset values should keep defaults, debounce = %d", base.Watch.DebounceMS)
	}
	if deps := base.StaticDeps()["app"]; !slices.Equal(deps, []string{"core"}) {
		t.Errorf("StaticDeps()[app] = %v", deps)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	writeConfig(t, configPath, `
[exclude]
patterns = ["*.log", "docs/generated"]

[build]
task = ":{module}:assembleDebug"
command = "./gradlew"
args = ["--offline", "-q"]

[check]
jobs = 8

[graph]
source = "static"

[modules.app]
deps = ["login", "core"]

[modules."feature:login"]
deps = ["core"]
`)

	cfg, err := loadConfigFile(configPath)
	if err != nil {
		t.Fatalf("loadConfigFile() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}
	if len(cfg.Exclude.Patterns) != 2 {
		t.Errorf("expected 2 patterns, got %v", cfg.Exclude.Patterns)
	}
	if cfg.Build.Task != ":{module}:assembleDebug" || cfg.Build.Command != "./gradlew" {
		t.Errorf("build = %+v", cfg.Build)
	}
	if cfg.Check.Jobs != 8 || cfg.Graph.Source != "static" {
		t.Errorf("check/graph = %+v %+v", cfg.Check, cfg.Graph)
	}
	if deps := cfg.Modules["feature:login"].Deps; !slices.Equal(deps, []string{"core"}) {
		t.Errorf("feature:login deps = %v", deps)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := loadConfigFile(filepath.Join(tmpDir, "missing.toml"))
	if cfg != nil || err != nil {
		t.Errorf("missing file = %v, %v, want nil, nil", cfg, err)
	}

	bad := filepath.Join(tmpDir, "bad.toml")
	writeConfig(t, bad, "[build\ntask = ")
	if _, err := loadConfigFile(bad); err == nil {
		t.Error("malformed TOML should fail")
	}

	unknown := filepath.Join(tmpDir, "unknown.toml")
	writeConfig(t, unknown, "[build]\ntaks = \"typo\"\n")
	_, err = loadConfigFile(unknown)
	if err == nil || !strings.Contains(err.Error(), "build.taks") {
		t.Errorf("unknown key error = %v, want mention of build.taks", err)
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("MODSNAP_EXCLUDE_PATTERNS", "*.log, docs")
	t.Setenv("MODSNAP_EXCLUDE_NO_DEFAULTS", "yes")
	t.Setenv("MODSNAP_BUILD_TASK", "{module}:compile")
	t.Setenv("MODSNAP_BUILD_ARGS", "--offline  --quiet")
	t.Setenv("MODSNAP_CHECK_JOBS", "3")
	t.Setenv("MODSNAP_GRAPH_SOURCE", "static")

	if err := applyEnvironmentVariables(cfg); err != nil {
		t.Fatalf("applyEnvironmentVariables() error = %v", err)
	}

	if !slices.Equal(cfg.Exclude.Patterns, []string{"*.log", "docs"}) {
		t.Errorf("patterns = %v", cfg.Exclude.Patterns)
	}
	if cfg.UseDefaultExcludes() {
		t.Error("MODSNAP_EXCLUDE_NO_DEFAULTS=yes should drop defaults")
	}
	if cfg.Build.Task != "{module}:compile" || !slices.Equal(cfg.Build.Args, []string{"--offline", "--quiet"}) {
		t.Errorf("build = %+v", cfg.Build)
	}
	if cfg.Check.Jobs != 3 || cfg.Graph.Source != "static" {
		t.Errorf("check/graph = %+v %+v", cfg.Check, cfg.Graph)
	}

	t.Setenv("MODSNAP_CHECK_JOBS", "many")
	if err := applyEnvironmentVariables(NewConfig()); err == nil {
		t.Error("non-numeric MODSNAP_CHECK_JOBS should fail")
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"build,src/test,*.iml", []string{"build", "src/test", "*.iml"}},
		{" build , docs ", []string{"build", "docs"}},
		{"build", []string{"build"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		if result := splitAndTrim(tt.input); !slices.Equal(result, tt.expected) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func TestLoadFrom_Layers(t *testing.T) {
	isolate(t)

	global := GetGlobalConfigPath()
	if global == "" {
		t.Skip("no user config dir")
	}
	writeConfig(t, global, `
[check]
jobs = 2

[exclude]
patterns = ["*.log"]
`)

	tmpDir := t.TempDir()
	project := filepath.Join(tmpDir, "project")
	sub := filepath.Join(project, "app", "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, filepath.Join(project, "settings.gradle"), "include ':app'\n")
	writeConfig(t, filepath.Join(project, ConfigFileName), `
[check]
jobs = 6

[exclude]
patterns = ["docs"]
`)
	t.Setenv("MODSNAP_BUILD_TASK", "{module}:env")

	cfg, err := LoadFrom(sub)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Check.Jobs != 6 {
		t.Errorf("project config should override global, jobs = %d", cfg.Check.Jobs)
	}
	if !slices.Equal(cfg.Exclude.Patterns, []string{"*.log", "docs"}) {
		t.Errorf("patterns = %v, want global then project", cfg.Exclude.Patterns)
	}
	if cfg.Build.Task != "{module}:env" {
		t.Errorf("env should override files, task = %q", cfg.Build.Task)
	}
}

func TestLoadWithFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.toml")
	writeConfig(t, path, "[graph]\nsource = \"static\"\n")

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v", err)
	}
	if cfg.Graph.Source != "static" {
		t.Errorf("graph.source = %q", cfg.Graph.Source)
	}

	if _, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("LoadWithFile() with a missing file should fail")
	}
}

func TestProjectConfigSearch(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project", "subdir")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "project", ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}
	writeConfig(t, filepath.Join(tmpDir, "project", ConfigDirName, "config.toml"), "[check]\njobs = 5\n")

	// Above the project root; must not be picked up.
	writeConfig(t, filepath.Join(tmpDir, ConfigFileName), "[check]\njobs = 99\n")

	cfg, err := loadProjectConfigFrom(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || cfg.Check.Jobs != 5 {
		t.Fatalf("loadProjectConfigFrom() = %+v, want jobs 5", cfg)
	}

	cfg, err = loadProjectConfigFrom(filepath.Join(tmpDir, "project"))
	if err != nil || cfg == nil || cfg.Check.Jobs != 5 {
		t.Errorf("search should stop at the project root, got %+v, %v", cfg, err)
	}
}

func TestProjectRootDetection(t *testing.T) {
	for _, marker := range []string{".git", "settings.gradle", "settings.gradle.kts"} {
		dir := t.TempDir()
		writeConfig(t, filepath.Join(dir, marker), "")
		if !IsProjectRoot(dir) {
			t.Errorf("directory with %s should be a project root", marker)
		}
		nested := filepath.Join(dir, "a", "b")
		if err := os.MkdirAll(nested, 0o755); err != nil {
			t.Fatal(err)
		}
		if got := FindProjectRoot(nested); got != dir {
			t.Errorf("FindProjectRoot(%s) = %s, want %s", nested, got, dir)
		}
	}

	plain := t.TempDir()
	if IsProjectRoot(plain) {
		t.Error("directory without markers should not be a project root")
	}
}
