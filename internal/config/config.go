package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds application configuration.
type Config struct {
	// PromptDebounceMS is the quiet period before a prompt surface is auto-saved.
	PromptDebounceMS int `json:"prompt_debounce_ms,omitempty" validate:"gte=0"`

	// FormDebounceMS is the quiet period before a form snapshot is auto-saved.
	FormDebounceMS int `json:"form_debounce_ms,omitempty" validate:"gte=0"`

	// DefaultMaxPrompts seeds settings.maxPrompts when no settings are stored yet.
	DefaultMaxPrompts int `json:"default_max_prompts,omitempty" validate:"gte=0"`

	// AutoSaveEnabled seeds settings.autoSaveEnabled when no settings are stored yet.
	AutoSaveEnabled bool `json:"auto_save_enabled,omitempty"`

	// DisableFormAutoSave seeds settings.formAutoSaveEnabled=false when no settings are stored yet.
	DisableFormAutoSave bool `json:"disable_form_auto_save,omitempty"`

	// ExcludedSites seeds settings.excludedSites when no settings are stored yet.
	ExcludedSites []string `json:"excluded_sites,omitempty"`

	// MaxImportBytes caps the size of an import file.
	MaxImportBytes int64 `json:"max_import_bytes,omitempty" validate:"gte=0"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.kayko/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names ("prompt", "settings", "form") to disable entirely.
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// ServerBind and ServerPort address the HTTP companion service.
	ServerBind string `json:"server_bind,omitempty"`
	ServerPort int    `json:"server_port,omitempty" validate:"gte=0,lte=65535"`

	// LogLevel, LogFormat ("console" or "json") and LogFile (rotated) configure logging.
	LogLevel  string `json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn warning error"`
	LogFormat string `json:"log_format,omitempty" validate:"omitempty,oneof=console json"`
	LogFile   string `json:"log_file,omitempty"`

	// EnhanceProvider selects the enhancement backend: "openai", "ollama" or "gemini".
	EnhanceProvider string `json:"enhance_provider,omitempty" validate:"omitempty,oneof=openai ollama gemini"`

	// EnhanceModel overrides the provider's default model.
	EnhanceModel string `json:"enhance_model,omitempty"`

	// EnhanceBaseURL overrides the provider endpoint (OpenAI-compatible servers, tests).
	EnhanceBaseURL string `json:"enhance_base_url,omitempty"`

	// EnhanceAPIKeyEnv names the environment variable holding the API key.
	EnhanceAPIKeyEnv string `json:"enhance_api_key_env,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PromptDebounceMS:  1000,
		FormDebounceMS:    2000,
		DefaultMaxPrompts: 100,
		MaxImportBytes:    10 * 1024 * 1024,
		ServerBind:        "127.0.0.1",
		ServerPort:        7411,
		LogLevel:          "info",
		LogFormat:         "console",
		EnhanceProvider:   "openai",
		EnhanceAPIKeyEnv:  "OPENAI_API_KEY",
	}
}

// PromptDebounce returns the prompt debounce delay as a duration.
func (c *Config) PromptDebounce() time.Duration {
	return time.Duration(c.PromptDebounceMS) * time.Millisecond
}

// FormDebounce returns the form debounce delay as a duration.
func (c *Config) FormDebounce() time.Duration {
	return time.Duration(c.FormDebounceMS) * time.Millisecond
}

// EnhanceAPIKey resolves the enhancement API key from the configured environment variable.
func (c *Config) EnhanceAPIKey() string {
	if c.EnhanceAPIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.EnhanceAPIKeyEnv))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.kayko.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.kayko) and repo (.kayko) directories.
// Repo config is found by walking upward from startDir to find the nearest .kayko/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .kayko/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".kayko", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.PromptDebounceMS = pickInt(overlay.PromptDebounceMS, base.PromptDebounceMS)
	result.FormDebounceMS = pickInt(overlay.FormDebounceMS, base.FormDebounceMS)
	result.DefaultMaxPrompts = pickInt(overlay.DefaultMaxPrompts, base.DefaultMaxPrompts)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.ServerPort = pickInt(overlay.ServerPort, base.ServerPort)

	result.MaxImportBytes = overlay.MaxImportBytes
	if result.MaxImportBytes == 0 {
		result.MaxImportBytes = base.MaxImportBytes
	}

	result.ServerBind = pickString(overlay.ServerBind, base.ServerBind)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.LogFormat = pickString(overlay.LogFormat, base.LogFormat)
	result.LogFile = pickString(overlay.LogFile, base.LogFile)
	result.EnhanceProvider = pickString(overlay.EnhanceProvider, base.EnhanceProvider)
	result.EnhanceModel = pickString(overlay.EnhanceModel, base.EnhanceModel)
	result.EnhanceBaseURL = pickString(overlay.EnhanceBaseURL, base.EnhanceBaseURL)
	result.EnhanceAPIKeyEnv = pickString(overlay.EnhanceAPIKeyEnv, base.EnhanceAPIKeyEnv)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.AutoSaveEnabled = base.AutoSaveEnabled || overlay.AutoSaveEnabled
	result.DisableFormAutoSave = base.DisableFormAutoSave || overlay.DisableFormAutoSave

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)
	result.ExcludedSites = mergeStringSlice(base.ExcludedSites, overlay.ExcludedSites)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
