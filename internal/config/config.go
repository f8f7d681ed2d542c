package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// Verbosity is the configured minimum severity for categorized log events.
type Verbosity string

const (
	VerbosityDebug Verbosity = "debug"
	VerbosityInfo  Verbosity = "info"
	VerbosityWarn  Verbosity = "warn"
	VerbosityNone  Verbosity = "none"
)

// ModelConfig names a model and its free-form parameter object.
type ModelConfig struct {
	ID     string         `json:"id,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Config is the fully-resolved configuration for one supervisor run,
// assembled from built-in defaults, an optional cache-directory defaults
// file, and CLI flags (flags always win).
type Config struct {
	Query        string      `json:"-"`
	SessionHash  string      `json:"-"`
	WorkDir      string      `json:"-"`
	Executor     ModelConfig `json:"executor,omitempty"`
	Planner      ModelConfig `json:"planner,omitempty"`
	Auditor      ModelConfig `json:"auditor,omitempty"`
	Verbosity    Verbosity   `json:"verbosity,omitempty"`
	SummaryMode  bool        `json:"summary_mode,omitempty"`
	OutputThreshold int      `json:"output_threshold_bytes,omitempty"`
	JSONLogsEnabled bool     `json:"json_logs_enabled,omitempty"`
	CacheDirectory  string   `json:"-"`
}

// Default returns the built-in defaults, prior to any file or flag overrides.
func Default() *Config {
	return &Config{
		Verbosity:       VerbosityInfo,
		OutputThreshold: 16768,
	}
}

// defaultsFileName is the optional JSONC defaults file consulted inside
// --cache-directory, analogous to the teacher's opencode.jsonc layering but
// reduced to a single file since this supervisor has no project/global split.
const defaultsFileName = "supervisor.jsonc"

// LoadDefaults merges cfg with the contents of <cacheDirectory>/supervisor.jsonc,
// if present. Fields already set on cfg take precedence (CLI flags win).
func LoadDefaults(cfg *Config, cacheDirectory string) error {
	if cacheDirectory == "" {
		return nil
	}
	path := filepath.Join(cacheDirectory, defaultsFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var fileCfg Config
	if err := json.Unmarshal(jsonc.ToJSON(raw), &fileCfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	mergeDefaults(cfg, &fileCfg)
	return nil
}

func mergeDefaults(target, fileDefaults *Config) {
	if target.Executor.ID == "" {
		target.Executor = fileDefaults.Executor
	}
	if target.Planner.ID == "" {
		target.Planner = fileDefaults.Planner
	}
	if target.Auditor.ID == "" {
		target.Auditor = fileDefaults.Auditor
	}
	if fileDefaults.Verbosity != "" && target.Verbosity == VerbosityInfo {
		target.Verbosity = fileDefaults.Verbosity
	}
	if target.OutputThreshold == 0 {
		target.OutputThreshold = fileDefaults.OutputThreshold
	}
}

// ParseModelParams decodes a JSON object string into a params map, as required
// for --executor-params/--planner-params/--auditor-params. An empty string is
// treated as "{}". A non-object JSON value is a configuration error.
func ParseModelParams(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid model params JSON: %w", err)
	}
	if params == nil {
		return nil, fmt.Errorf("invalid model params JSON: expected an object, got %s", raw)
	}
	return params, nil
}

// ParseVerbosity validates a --verbosity flag value.
func ParseVerbosity(raw string) (Verbosity, error) {
	switch Verbosity(raw) {
	case VerbosityDebug, VerbosityInfo, VerbosityWarn, VerbosityNone:
		return Verbosity(raw), nil
	default:
		return "", fmt.Errorf("invalid verbosity %q: must be one of debug|info|warn|none", raw)
	}
}
