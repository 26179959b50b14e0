// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Generation strategies
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// Defaults applied by MergeWithDefaults when a field is unset.
const (
	DefaultOutputFilename = "{0}-{1}"
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultMaxSkillGroups = 6
	DefaultTimeoutSeconds = 180
)

// Environment variables consulted when the matching field is empty.
const (
	EnvAPIKey       = "GEMINI_API_KEY"
	EnvServiceToken = "QUICK_RESUME_SERVICE_TOKEN"
	EnvDatabaseURL  = "DATABASE_URL"
)

// Config represents the CLI configuration loaded from a JSON or TOML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Output
	OutputDir       string `json:"output_dir,omitempty" toml:"output_dir"`               // Directory holding exported artifacts
	OutputFilename  string `json:"output_filename,omitempty" toml:"output_filename"`     // Base name template, {0}=role {1}=employer
	Template        string `json:"template,omitempty" toml:"template"`                   // Path to DOCX template
	OpenAfterExport bool   `json:"open_after_export,omitempty" toml:"open_after_export"` // Open the document in the platform viewer

	// Generation
	Strategy       string `json:"strategy,omitempty" toml:"strategy"`                 // "local" or "remote"
	ServiceURL     string `json:"service_url,omitempty" toml:"service_url"`           // Base URL of the remote generation service
	ServiceToken   string `json:"service_token,omitempty" toml:"service_token"`       // Shared secret for service tokens
	APIKey         string `json:"api_key,omitempty" toml:"api_key"`                   // Gemini API key
	Model          string `json:"model,omitempty" toml:"model"`                       // Overrides the standard-tier model
	Instructions   string `json:"instructions,omitempty" toml:"instructions"`         // Instruction override file (.json or plain text)
	MaxSkillGroups int    `json:"max_skill_groups,omitempty" toml:"max_skill_groups"` // Skill groups must stay below this count
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" toml:"timeout_seconds"`   // Remote request timeout

	// Behavior
	UseBrowser  bool   `json:"use_browser,omitempty" toml:"use_browser"`   // Use headless browser for SPA sites
	Verbose     bool   `json:"verbose,omitempty" toml:"verbose"`           // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty" toml:"database_url"` // PostgreSQL connection URL for history
	ListenAddr  string `json:"listen_addr,omitempty" toml:"listen_addr"`   // serve listen address
	LockFile    string `json:"lock_file,omitempty" toml:"lock_file"`       // serve single-instance lock
}

// LoadConfig loads configuration from a JSON or TOML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// Defaults returns the built-in configuration defaults.
func Defaults() Config {
	return Config{
		OutputFilename: DefaultOutputFilename,
		Strategy:       StrategyLocal,
		MaxSkillGroups: DefaultMaxSkillGroups,
		TimeoutSeconds: DefaultTimeoutSeconds,
		ListenAddr:     DefaultListenAddr,
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check the output directory; a missing directory is
// reported when an export is attempted.
func (c *Config) Validate() error {
	switch c.Strategy {
	case "", StrategyLocal:
	case StrategyRemote:
		if c.ServiceURL == "" {
			return fmt.Errorf("config error: 'service_url' is required for the remote strategy")
		}
	default:
		return fmt.Errorf("config error: unknown strategy %q (want %q or %q)", c.Strategy, StrategyLocal, StrategyRemote)
	}

	if c.MaxSkillGroups < 0 {
		return fmt.Errorf("config error: 'max_skill_groups' must be non-negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'timeout_seconds' must be non-negative")
	}

	if c.Template != "" {
		if _, err := os.Stat(c.Template); os.IsNotExist(err) {
			return fmt.Errorf("config error: template file not found: %s", c.Template)
		}
	}

	if c.Instructions != "" {
		if _, err := os.Stat(c.Instructions); os.IsNotExist(err) {
			return fmt.Errorf("config error: instructions file not found: %s", c.Instructions)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.OutputFilename == "" {
		result.OutputFilename = defaults.OutputFilename
	}
	if result.Template == "" {
		result.Template = defaults.Template
	}
	if result.Strategy == "" {
		result.Strategy = defaults.Strategy
	}
	if result.ServiceURL == "" {
		result.ServiceURL = defaults.ServiceURL
	}
	if result.ServiceToken == "" {
		result.ServiceToken = defaults.ServiceToken
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.Instructions == "" {
		result.Instructions = defaults.Instructions
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.LockFile == "" {
		result.LockFile = defaults.LockFile
	}

	// Int fields: use default if zero
	if result.MaxSkillGroups == 0 {
		result.MaxSkillGroups = defaults.MaxSkillGroups
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// ApplyEnv fills credentials left empty from the environment.
func (c *Config) ApplyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv(EnvAPIKey)
	}
	if c.ServiceToken == "" {
		c.ServiceToken = os.Getenv(EnvServiceToken)
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
}
