// Package config loads keystore configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/keystore/internal/fileutil"
	kserr "github.com/mrz1836/keystore/pkg/errors"
	"github.com/mrz1836/keystore/pkg/wallet"
)

// EnvPrefix prefixes environment overrides, e.g. KEYSTORE_STORAGE_BACKEND.
const EnvPrefix = "KEYSTORE"

// Storage backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

// Config is the keystore configuration.
type Config struct {
	Version    int               `yaml:"version" mapstructure:"version"`
	Home       string            `yaml:"home" mapstructure:"home"`
	Storage    StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Encryption wallet.Encryption `yaml:"encryption" mapstructure:"encryption"`
	Security   SecurityConfig    `yaml:"security" mapstructure:"security"`
	Logging    LoggingConfig     `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
}

// StorageConfig selects and configures the wallet storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the wallet directory of the file backend.
	Path string `yaml:"path" mapstructure:"path"`

	// BadgerDir is the database directory of the badger backend.
	// Empty runs badger in memory.
	BadgerDir string `yaml:"badger_dir" mapstructure:"badger_dir"`

	MongoURI        string `yaml:"mongo_uri" mapstructure:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database" mapstructure:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection" mapstructure:"mongo_collection"`
}

// SecurityConfig defines security settings.
type SecurityConfig struct {
	MemoryLock bool `yaml:"memory_lock" mapstructure:"memory_lock"`

	// PasswordAttemptsPerMinute throttles password attempts per wallet.
	// Zero disables throttling.
	PasswordAttemptsPerMinute float64 `yaml:"password_attempts_per_minute" mapstructure:"password_attempts_per_minute"`
	PasswordAttemptBurst      int     `yaml:"password_attempt_burst" mapstructure:"password_attempt_burst"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	File   string `yaml:"file" mapstructure:"file"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig defines metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// Load reads configuration from path, layering defaults, the file and
// KEYSTORE_* environment variables. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: config file %s does not exist", kserr.ErrInvalidInput, path)
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return fileutil.WriteAtomic(path, data, 0o600, 0o750)
}

// Path returns the default config file path under home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default keystore home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keystore"
	}
	return filepath.Join(home, ".keystore")
}

// ExpandPath expands a leading ~ in path.
func ExpandPath(path string) (string, error) {
	return fileutil.ExpandHome(path)
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the file backend", kserr.ErrInvalidInput)
		}
	case BackendMemory, BackendBadger:
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("%w: storage.mongo_uri is required for the mongo backend", kserr.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", kserr.ErrInvalidInput, c.Storage.Backend)
	}

	if err := c.Encryption.Validate(); err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	if c.Security.PasswordAttemptsPerMinute < 0 {
		return fmt.Errorf("%w: security.password_attempts_per_minute must not be negative", kserr.ErrInvalidInput)
	}
	if c.Security.PasswordAttemptsPerMinute > 0 && c.Security.PasswordAttemptBurst < 1 {
		return fmt.Errorf("%w: security.password_attempt_burst must be at least 1", kserr.ErrInvalidInput)
	}

	if _, ok := parseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", kserr.ErrInvalidInput, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log format %q", kserr.ErrInvalidInput, c.Logging.Format)
	}
	return nil
}

// setDefaults registers every key so environment variables can override
// values the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("home", d.Home)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.badger_dir", d.Storage.BadgerDir)
	v.SetDefault("storage.mongo_uri", d.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", d.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", d.Storage.MongoCollection)

	v.SetDefault("encryption.cipher", string(d.Encryption.Cipher))
	v.SetDefault("encryption.scrypt_n", d.Encryption.ScryptN)
	v.SetDefault("encryption.scrypt_p", d.Encryption.ScryptP)

	v.SetDefault("security.memory_lock", d.Security.MemoryLock)
	v.SetDefault("security.password_attempts_per_minute", d.Security.PasswordAttemptsPerMinute)
	v.SetDefault("security.password_attempt_burst", d.Security.PasswordAttemptBurst)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}
