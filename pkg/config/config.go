// Package config implements the layered configuration cascade (§4.9, §6):
// built-in defaults, a discovered config file, environment variables, and
// command-line flags, lowest to highest precedence. It is hand-rolled in
// the teacher's style rather than built on spf13/viper (see DESIGN.md):
// the teacher itself never imports viper directly, only picking it up
// transitively through a linter toolchain it shells out to.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	goyaml "github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tinyland-inc/huskycat/pkg/constants"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/sliceutil"
)

var configLog = logger.New("config")

//go:embed schema/config.json
var configSchemaJSON string

const configSchemaURL = "https://huskycat.local/schema/config.json"

var (
	schemaOnce  sync.Once
	schema      *jsonschema.Schema
	schemaError error
)

func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		var doc any
		if err := json.Unmarshal([]byte(configSchemaJSON), &doc); err != nil {
			schemaError = fmt.Errorf("parsing embedded config schema: %w", err)
			return
		}
		if err := compiler.AddResource(configSchemaURL, doc); err != nil {
			schemaError = fmt.Errorf("adding config schema resource: %w", err)
			return
		}
		schema, schemaError = compiler.Compile(configSchemaURL)
	})
	return schema, schemaError
}

// validateAgainstSchema checks a generically-decoded config document
// against the embedded JSON Schema, catching type mistakes (e.g. a string
// where a feature flag expects a boolean) with a clearer error than the
// one the YAML/JSON decoder would produce on its own.
func validateAgainstSchema(raw map[string]json.RawMessage, path string) error {
	compiled, err := getCompiledSchema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encoding %s for schema validation: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decoding %s for schema validation: %w", path, err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%s does not match the expected configuration shape: %w", path, err)
	}
	return nil
}

// EnvPrefix is the fixed prefix for every huskycat environment variable.
const EnvPrefix = "HUSKYCAT"

// knownConfigFilenames are tried in order at each directory while walking
// from CWD toward the filesystem root (§6).
var knownConfigFilenames = []string{
	".huskycat.yml",
	".huskycat.yaml",
	".huskycat.json",
	"huskycat.yml",
	"huskycat.yaml",
	"huskycat.json",
}

// ToolConfig is one tool's per-config overrides: enable/disable and extra
// CLI args appended to its argv.
type ToolConfig struct {
	Enabled   *bool    `yaml:"enabled" json:"enabled"`
	ExtraArgs []string `yaml:"extra_args" json:"extra_args"`
}

// FeatureFlags holds the recognized top-level feature flags (§4.9).
type FeatureFlags struct {
	NonblockingHooks  bool `yaml:"nonblocking_hooks" json:"nonblocking_hooks"`
	ParallelExecution bool `yaml:"parallel_execution" json:"parallel_execution"`
	TUIProgress       bool `yaml:"tui_progress" json:"tui_progress"`
	CacheResults      bool `yaml:"cache_results" json:"cache_results"`
}

// Config is the fully merged configuration for one invocation.
type Config struct {
	FeatureFlags    FeatureFlags          `yaml:"feature_flags" json:"feature_flags"`
	Tools           map[string]ToolConfig `yaml:"tools" json:"tools"`
	ExcludePatterns []string              `yaml:"exclude_patterns" json:"exclude_patterns"`

	// SourcePath is the discovered config file path, empty if none was found.
	SourcePath string `yaml:"-" json:"-"`
	// Warnings accumulates non-fatal issues (e.g. unknown keys) discovered
	// while parsing the config file.
	Warnings []string `yaml:"-" json:"-"`
}

// Defaults returns the built-in default layer (§4.9), the lowest-precedence
// layer in the cascade.
func Defaults() Config {
	return Config{
		FeatureFlags: FeatureFlags{
			NonblockingHooks:  true,
			ParallelExecution: true,
			TUIProgress:       true,
			CacheResults:      true,
		},
		Tools:           map[string]ToolConfig{},
		ExcludePatterns: []string{".git/**", "node_modules/**", "vendor/**"},
	}
}

// Overrides are the command-line-flag layer, the highest precedence. A nil
// field means "flag not set, don't override."
type Overrides struct {
	NonblockingHooks  *bool
	ParallelExecution *bool
	TUIProgress       *bool
	CacheResults      *bool
}

// Load runs the full cascade: defaults, then the discovered config file (if
// any) starting from startDir, then environment variables, then flag
// overrides.
func Load(startDir string, overrides Overrides) (Config, error) {
	cfg := Defaults()

	path, err := Discover(startDir)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		fileCfg, warnings, err := parseFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("configuration error: failed to parse %s: %w", path, err)
		}
		cfg = mergeFile(cfg, fileCfg)
		cfg.SourcePath = path
		cfg.Warnings = warnings
		for _, w := range warnings {
			configLog.Printf("config warning: %s", w)
		}
	}

	if err := applyEnv(&cfg, os.Environ()); err != nil {
		return Config{}, err
	}

	applyOverrides(&cfg, overrides)

	return cfg, nil
}

// Discover walks from startDir toward the filesystem root, returning the
// first matching known config filename, or "" if none is found.
func Discover(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}
	for {
		for _, name := range knownConfigFilenames {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func parseFile(path string) (Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, err
	}

	var raw map[string]json.RawMessage
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, nil, err
		}
	} else {
		if err := goyaml.Unmarshal(data, &raw); err != nil {
			return Config{}, nil, err
		}
	}

	if err := validateAgainstSchema(raw, path); err != nil {
		return Config{}, nil, err
	}

	// Seed the feature flags with their defaults so flags the file leaves
	// out keep their default value when mergeFile layers this over base.
	cfg := Config{FeatureFlags: Defaults().FeatureFlags}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, nil, err
		}
	} else {
		if err := goyaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, nil, err
		}
	}

	var warnings []string
	for key := range raw {
		if !sliceutil.Contains(topLevelConfigKeys, key) {
			warnings = append(warnings, fmt.Sprintf("unknown configuration key %q in %s", key, path))
		}
	}
	for name := range cfg.Tools {
		if !sliceutil.Contains(constants.KnownTools, name) {
			warnings = append(warnings, fmt.Sprintf("%q in %s is not a tool huskycat knows how to run", name, path))
		}
	}
	return cfg, warnings, nil
}

var topLevelConfigKeys = []string{"feature_flags", "tools", "exclude_patterns"}

// mergeFile layers fileCfg's explicitly-set fields over base.
func mergeFile(base, fileCfg Config) Config {
	if fileCfg.Tools != nil {
		base.Tools = fileCfg.Tools
	}
	if fileCfg.ExcludePatterns != nil {
		base.ExcludePatterns = fileCfg.ExcludePatterns
	}
	base.FeatureFlags = fileCfg.FeatureFlags
	return base
}

// applyEnv overlays environment-variable overrides per §6:
// <PREFIX>_NONBLOCKING and <PREFIX>_FEATURE_<NAME>.
func applyEnv(cfg *Config, environ []string) error {
	prefix := EnvPrefix + "_"
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)

		switch {
		case rest == "NONBLOCKING":
			b, err := parseFeatureBool(value)
			if err != nil {
				return fmt.Errorf("configuration error: %s=%q: %w", key, value, err)
			}
			cfg.FeatureFlags.NonblockingHooks = b
		case strings.HasPrefix(rest, "FEATURE_"):
			name := strings.ToLower(strings.TrimPrefix(rest, "FEATURE_"))
			b, err := parseFeatureBool(value)
			if err != nil {
				return fmt.Errorf("configuration error: %s=%q: %w", key, value, err)
			}
			if err := setFeatureFlag(&cfg.FeatureFlags, name, b); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
		}
	}
	return nil
}

// parseFeatureBool parses the case-insensitive boolean vocabulary from §6:
// {true, false, 1, 0, yes, no, on, off}.
func parseFeatureBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		if b, err := strconv.ParseBool(value); err == nil {
			return b, nil
		}
		return false, fmt.Errorf("bad feature-flag value")
	}
}

func setFeatureFlag(flags *FeatureFlags, name string, value bool) error {
	switch name {
	case "nonblocking_hooks":
		flags.NonblockingHooks = value
	case "parallel_execution":
		flags.ParallelExecution = value
	case "tui_progress":
		flags.TUIProgress = value
	case "cache_results":
		flags.CacheResults = value
	default:
		return fmt.Errorf("unknown feature flag %q", name)
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.NonblockingHooks != nil {
		cfg.FeatureFlags.NonblockingHooks = *o.NonblockingHooks
	}
	if o.ParallelExecution != nil {
		cfg.FeatureFlags.ParallelExecution = *o.ParallelExecution
	}
	if o.TUIProgress != nil {
		cfg.FeatureFlags.TUIProgress = *o.TUIProgress
	}
	if o.CacheResults != nil {
		cfg.FeatureFlags.CacheResults = *o.CacheResults
	}
}

// ToolEnabled reports whether name is enabled, defaulting to true when
// unconfigured.
func (c Config) ToolEnabled(name string) bool {
	tc, ok := c.Tools[name]
	if !ok || tc.Enabled == nil {
		return true
	}
	return *tc.Enabled
}

// ToolExtraArgs returns the configured extra argv entries for name.
func (c Config) ToolExtraArgs(name string) []string {
	return c.Tools[name].ExtraArgs
}

// ExcludeMatch reports whether path matches any configured exclude pattern.
// Patterns follow filepath.Match glob syntax with "**" read as "*". A pattern
// matches if it matches the whole path or its base name, or, for a pattern
// ending in "/**", if path lies under the directory before it. Other
// suffixes of path are not tried.
func (c Config) ExcludeMatch(path string) bool {
	for _, pattern := range c.ExcludePatterns {
		if matchGlob(pattern, path) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, path string) bool {
	cleanPattern := strings.ReplaceAll(pattern, "**", "*")
	if ok, err := filepath.Match(cleanPattern, path); err == nil && ok {
		return true
	}
	prefix := strings.TrimSuffix(strings.TrimSuffix(pattern, "**"), "/")
	if prefix != "" && prefix != pattern && strings.HasPrefix(path, prefix+"/") {
		return true
	}
	base := filepath.Base(path)
	if ok, err := filepath.Match(cleanPattern, base); err == nil && ok {
		return true
	}
	return false
}
