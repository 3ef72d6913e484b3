// Package config loads repotool settings from YAML, REPOTOOL_ environment
// variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/repotool/pkg/repotool/hasher"
	"github.com/jamesainslie/repotool/pkg/repotool/manifest"
	"github.com/jamesainslie/repotool/pkg/repotool/types"
)

// EnvPrefix prefixes every environment override, e.g. REPOTOOL_WORKERS.
const EnvPrefix = "REPOTOOL"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// HistoryConfig configures the record of past runs.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config is the resolved application configuration.
type Config struct {
	// ManifestName is the manifest file name at the repository root.
	ManifestName string `mapstructure:"manifest_name"`

	// HashMethod is the default algorithm for newly created manifests.
	HashMethod string `mapstructure:"hash_method"`

	// Ignore holds extra patterns added to newly created manifests.
	Ignore []string `mapstructure:"ignore"`

	Workers    int           `mapstructure:"workers"`
	Output     string        `mapstructure:"output"`
	IgnoreDate bool          `mapstructure:"ignore_date"`
	History    HistoryConfig `mapstructure:"history"`
	Logging    LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("manifest_name", DefaultManifestName)
	v.SetDefault("hash_method", DefaultHashMethod)
	v.SetDefault("ignore", []string{})
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("ignore_date", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", defaultComponents)
}

// Prepare points v at the config file and environment. An explicit file
// wins over the XDG search path.
func Prepare(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// Read loads the config file into v. A missing file is not an error.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Load reads configuration from the default locations and the environment.
func Load() (*Config, error) {
	v := viper.New()
	Prepare(v, "")
	if err := Read(v); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	if cfg.History.Path, err = ExpandPath(cfg.History.Path); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed through types alone.
func (c *Config) Validate() error {
	if c.ManifestName == "" || strings.ContainsRune(c.ManifestName, '/') {
		return fmt.Errorf("invalid manifest_name %q", c.ManifestName)
	}
	if !hasher.IsSupported(c.HashMethod) {
		return fmt.Errorf("hash_method: %w: %s", hasher.ErrUnsupportedAlgorithm, c.HashMethod)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if _, err := manifest.NewIgnoreMatcher(c.Ignore); err != nil {
		return fmt.Errorf("ignore: %w", err)
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative, got %d", c.History.RetentionDays)
	}
	if c.Logging.Rotation.MaxSize != "" {
		if _, err := types.ParseSize(c.Logging.Rotation.MaxSize); err != nil {
			return fmt.Errorf("logging.rotation.max_size: %w", err)
		}
	}
	return nil
}

// HistoryPath returns the configured history database directory, or the
// default under the data directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(DataDir(), "history")
}

// ConfigDir returns $XDG_CONFIG_HOME/repotool, falling back to
// ~/.config/repotool.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "repotool"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "repotool"), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/repotool.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "repotool")
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a commented default config file and returns its
// path. An existing file is left alone.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(defaultTemplate,
		DefaultManifestName, DefaultHashMethod, DefaultWorkers, DefaultOutput, DefaultRetentionDays)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

const defaultTemplate = `# repotool configuration

# Manifest file kept at the root of each repository
manifest_name: %s

# Digest used by "repotool create" (MD5, SHA1, SHA256, SHA512, BLAKE2B-256, XXH64)
hash_method: %s

# Extra ignore patterns (regular expressions on paths like ./dir/file.txt)
# added to newly created manifests
ignore: []

# Concurrent directory reads and hash streams (0 = size from CPU and memory)
workers: %d

# Report format: plain, pretty, json, yaml
output: %s

# Treat last-modified-only differences as insignificant for the exit code
ignore_date: false

# Record of past runs
history:
  enabled: true
  # Empty means $XDG_DATA_HOME/repotool/history
  path: ""
  retention_days: %d

logging:
  # debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/repotool/repotool.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30
    max_backups: 5
    daily: true
  components:
    engine: info
    history: warn
    cli: info
`
