package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "modsnap.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".modsnap"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "modsnap"

// EnvPrefix prefixes every environment variable read by the loader.
const EnvPrefix = "MODSNAP_"

// LoadFrom loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/modsnap/config.toml)
//  3. Project config (.modsnap/config.toml or modsnap.toml), searched from
//     dir upwards to the project root
//  4. Environment variables (MODSNAP_*)
//
// A config file that exists but does not parse is an error.
func LoadFrom(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetGlobalConfigPath(); path != "" {
		globalCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(globalCfg)
	}

	projectCfg, err := loadProjectConfigFrom(dir)
	if err != nil {
		return nil, err
	}
	cfg.Merge(projectCfg)

	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFile is LoadFrom with an explicit project config file in place of
// the upward search.
func LoadWithFile(path string) (*Config, error) {
	cfg := NewConfig()
	if global := GetGlobalConfigPath(); global != "" {
		globalCfg, err := loadConfigFile(global)
		if err != nil {
			return nil, err
		}
		cfg.Merge(globalCfg)
	}

	fileCfg, err := loadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if fileCfg == nil {
		return nil, fmt.Errorf("config file %s: %w", path, fs.ErrNotExist)
	}
	cfg.Merge(fileCfg)

	if err := applyEnvironmentVariables(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadProjectConfigFrom looks for project configuration starting from the given directory.
func loadProjectConfigFrom(dir string) (*Config, error) {
	current := dir
	for {
		for _, path := range GetProjectConfigPaths(current) {
			cfg, err := loadConfigFile(path)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				return cfg, nil
			}
		}

		if IsProjectRoot(current) {
			break
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return nil, nil
}

// projectMarkers identify the root of a Gradle project or repository.
var projectMarkers = []string{"settings.gradle", "settings.gradle.kts", ".git"}

// IsProjectRoot checks if the directory has a settings script or .git.
func IsProjectRoot(dir string) bool {
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from dir to the nearest project root. It returns
// dir itself when no marker is found.
func FindProjectRoot(dir string) string {
	dir = filepath.Clean(dir)
	current := dir
	for {
		if IsProjectRoot(current) {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}

// loadConfigFile loads a configuration from a TOML file. A missing file
// returns nil, nil.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// applyEnvironmentVariables applies MODSNAP_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) error {
	// MODSNAP_EXCLUDE_PATTERNS: comma-separated patterns added to the list
	if v := os.Getenv(EnvPrefix + "EXCLUDE_PATTERNS"); v != "" {
		cfg.Exclude.Patterns = append(cfg.Exclude.Patterns, splitAndTrim(v)...)
	}
	applyBoolEnv(EnvPrefix+"EXCLUDE_NO_DEFAULTS", &cfg.Exclude.NoDefaults)

	if v := os.Getenv(EnvPrefix + "BUILD_TASK"); v != "" {
		cfg.Build.Task = v
	}
	if v := os.Getenv(EnvPrefix + "BUILD_COMMAND"); v != "" {
		cfg.Build.Command = v
	}
	// MODSNAP_BUILD_ARGS: whitespace-separated
	if v := os.Getenv(EnvPrefix + "BUILD_ARGS"); v != "" {
		cfg.Build.Args = strings.Fields(v)
	}

	if err := applyIntEnv(EnvPrefix+"CHECK_JOBS", &cfg.Check.Jobs); err != nil {
		return err
	}
	if err := applyIntEnv(EnvPrefix+"WATCH_DEBOUNCE_MS", &cfg.Watch.DebounceMS); err != nil {
		return err
	}
	if v := os.Getenv(EnvPrefix + "GRAPH_SOURCE"); v != "" {
		cfg.Graph.Source = v
	}
	if v := os.Getenv(EnvPrefix + "SNAPSHOT_DIR_NAME"); v != "" {
		cfg.Snapshot.DirName = v
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	if v := os.Getenv(envVar); v != "" {
		v = strings.ToLower(v)
		if v == "true" || v == "1" || v == "yes" {
			t := true
			*target = &t
		} else if v == "false" || v == "0" || v == "no" {
			f := false
			*target = &f
		}
	}
}

func applyIntEnv(envVar string, target *int) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*target = n
	return nil
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
