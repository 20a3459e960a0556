// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lamachat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lamachat configuration.
type Config struct {
	// General settings
	Version      string `toml:"version" json:"version"`
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Persona is the system prompt prefix for every generation. Empty
	// selects the built-in default.
	Persona string `toml:"persona" json:"persona"`

	// Server (Ollama) configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Sampling configuration
	Sampling SamplingConfig `toml:"sampling" json:"sampling"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains Ollama endpoint and probing configuration.
type ServerConfig struct {
	// Candidates are the endpoint URLs tried in order by the prober.
	Candidates []string `toml:"candidates" json:"candidates"`
	// ProbeIntervalSecs is how often connectivity is re-checked (default 10).
	ProbeIntervalSecs int `toml:"probe_interval_secs" json:"probe_interval_secs"`
	// ProbeTimeoutSecs is the per-candidate probe timeout (default 2).
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs"`
	// RequestTimeoutSecs bounds non-streaming requests such as model
	// listing (default 30). Generations are never timed out.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
}

// SamplingConfig contains model sampling parameters.
type SamplingConfig struct {
	// Temperature is the sampling temperature, 0.0-2.0 (default 0.7).
	Temperature float64 `toml:"temperature" json:"temperature"`
	// ContextWindow is the num_ctx option sent with every generation
	// (default 4096).
	ContextWindow int `toml:"context_window" json:"context_window"`
}

// StorageConfig contains chat persistence configuration.
type StorageConfig struct {
	// Path is the chat database location (empty = ~/.lamachat/chats.db).
	Path string `toml:"path" json:"path"`
}

// UIConfig contains terminal presentation configuration.
type UIConfig struct {
	// RenderMarkdown re-renders completed replies through a markdown
	// formatter when the output is a terminal.
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
	// Color enables styled output. Disabled automatically when stdout is
	// not a terminal.
	Color bool `toml:"color" json:"color"`
	// WebSearchEnabled starts the web-search context toggle on.
	WebSearchEnabled bool `toml:"web_search_enabled" json:"web_search_enabled"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:      "1.0.0",
		DefaultModel: "llava:7b",

		Server: ServerConfig{
			Candidates: []string{
				"http://127.0.0.1:11434",
				"http://localhost:11434",
			},
			ProbeIntervalSecs:  10,
			ProbeTimeoutSecs:   2,
			RequestTimeoutSecs: 30,
		},

		Sampling: SamplingConfig{
			Temperature:   0.7,
			ContextWindow: 4096,
		},

		UI: UIConfig{
			RenderMarkdown: true,
			Color:          true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the lamachat configuration directory (~/.lamachat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lamachat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StoragePath resolves the chat database location, falling back to the
// default under the config dir.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// DURATION ACCESSORS
// =============================================================================

// ProbeInterval returns the prober cycle interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Server.ProbeIntervalSecs) * time.Second
}

// ProbeTimeout returns the per-candidate probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Server.ProbeTimeoutSecs) * time.Second
}

// RequestTimeout returns the non-streaming request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finalize(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finalize(cfg)
		}
	}

	return finalize(cfg)
}

// finalize applies env overrides, fills defaults, and validates.
func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from an explicit path, inferring the
// format from the extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML path.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# lamachat configuration file")
	fmt.Fprintln(file, "# Generated by lamachat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write prevents a truncated config on crash.
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.DefaultModel == "" {
		errs = append(errs, ValidationError{
			Field:   "default_model",
			Message: "cannot be empty",
		})
	}

	if len(c.Server.Candidates) == 0 {
		errs = append(errs, ValidationError{
			Field:   "server.candidates",
			Message: "at least one endpoint URL is required",
		})
	}
	for _, candidate := range c.Server.Candidates {
		u, err := url.Parse(candidate)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.candidates",
				Message: fmt.Sprintf("invalid endpoint URL '%s'", candidate),
			})
		}
	}

	if c.Server.ProbeIntervalSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.probe_interval_secs",
			Message: "must be at least 1",
		})
	}
	if c.Server.ProbeTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.probe_timeout_secs",
			Message: "must be at least 1",
		})
	}

	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "sampling.temperature",
			Message: fmt.Sprintf("must be between 0.0 and 2.0, got %g", c.Sampling.Temperature),
		})
	}
	if c.Sampling.ContextWindow < 0 {
		errs = append(errs, ValidationError{
			Field:   "sampling.context_window",
			Message: "cannot be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in zero values left by a sparse config file.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Version == "" {
		c.Version = def.Version
	}
	if c.DefaultModel == "" {
		c.DefaultModel = def.DefaultModel
	}
	if len(c.Server.Candidates) == 0 {
		c.Server.Candidates = def.Server.Candidates
	}
	if c.Server.ProbeIntervalSecs == 0 {
		c.Server.ProbeIntervalSecs = def.Server.ProbeIntervalSecs
	}
	if c.Server.ProbeTimeoutSecs == 0 {
		c.Server.ProbeTimeoutSecs = def.Server.ProbeTimeoutSecs
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = def.Server.RequestTimeoutSecs
	}
	if c.Sampling.Temperature == 0 {
		c.Sampling.Temperature = def.Sampling.Temperature
	}
	if c.Sampling.ContextWindow == 0 {
		c.Sampling.ContextWindow = def.Sampling.ContextWindow
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - LAMACHAT_MODEL: overrides default_model
//   - LAMACHAT_OLLAMA_URL: replaces server.candidates with a single URL
//   - LAMACHAT_PERSONA: overrides persona
//   - LAMACHAT_TEMPERATURE: overrides sampling.temperature
//   - LAMACHAT_NUM_CTX: overrides sampling.context_window
//   - LAMACHAT_STORAGE: overrides storage.path
//   - LAMACHAT_NO_MARKDOWN: set to "1" or "true" to disable markdown rendering
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("LAMACHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}

	if url := os.Getenv("LAMACHAT_OLLAMA_URL"); url != "" {
		c.Server.Candidates = []string{url}
	}

	if persona := os.Getenv("LAMACHAT_PERSONA"); persona != "" {
		c.Persona = persona
	}

	if temp := os.Getenv("LAMACHAT_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			c.Sampling.Temperature = v
		}
	}

	if numCtx := os.Getenv("LAMACHAT_NUM_CTX"); numCtx != "" {
		if v, err := strconv.Atoi(numCtx); err == nil {
			c.Sampling.ContextWindow = v
		}
	}

	if path := os.Getenv("LAMACHAT_STORAGE"); path != "" {
		c.Storage.Path = path
	}

	if noMD := os.Getenv("LAMACHAT_NO_MARKDOWN"); noMD == "1" || strings.EqualFold(noMD, "true") {
		c.UI.RenderMarkdown = false
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
