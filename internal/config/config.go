package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for codewarden
type Config struct {
	// Storage configuration
	StorageDir   string `mapstructure:"storage_dir"`
	StoreBackend string `mapstructure:"store_backend"`

	// Threshold for CI/CD failure
	FailThreshold int `mapstructure:"fail_threshold"`

	// Output format (text, json, both)
	Format string `mapstructure:"format"`

	// Number of last runs to analyze for trends
	LastRuns int `mapstructure:"last_runs"`

	Verbose bool `mapstructure:"verbose"`
	Debug   bool `mapstructure:"debug"`

	// Custom rule file or directory merged over the builtin catalog
	RulesPath string `mapstructure:"rules_path"`

	// Archive resource limits
	MaxArchiveMB int `mapstructure:"max_archive_mb"`
	MaxEntries   int `mapstructure:"max_entries"`
	MaxDepth     int `mapstructure:"max_depth"`
	MaxTextKB    int `mapstructure:"max_text_kb"`

	// Minimum run of identical lines counted as duplication
	DuplicationWindow int `mapstructure:"duplication_window"`

	// Source collection
	Concurrency int      `mapstructure:"concurrency"`
	Exclude     []string `mapstructure:"exclude"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds credentials for s3:// archive sources
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

const (
	minConcurrency = 1
	maxConcurrency = 16
)

var validBackends = map[string]bool{
	"file":   true,
	"sqlite": true,
	"memory": true,
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		StorageDir:        ".codewarden",
		StoreBackend:      "file",
		FailThreshold:     0, // 0 means no threshold check
		Format:            "text",
		LastRuns:          7,
		MaxArchiveMB:      100,
		MaxEntries:        10000,
		MaxDepth:          20,
		MaxTextKB:         2048,
		DuplicationWindow: 6,
		Concurrency:       4,
		S3:                S3Config{UseSSL: true},
	}
}

// Load loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (~/codewarden.yaml or ./codewarden.yaml)
// 3. Environment variables (CODEWARDEN_*), including those from ./.env
// 4. CLI flags (handled by caller)
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file path
// If path is empty, it searches for config in standard locations
func LoadFromFile(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("storage_dir", defaults.StorageDir)
	v.SetDefault("store_backend", defaults.StoreBackend)
	v.SetDefault("fail_threshold", defaults.FailThreshold)
	v.SetDefault("format", defaults.Format)
	v.SetDefault("last_runs", defaults.LastRuns)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("debug", defaults.Debug)
	v.SetDefault("rules_path", "")
	v.SetDefault("max_archive_mb", defaults.MaxArchiveMB)
	v.SetDefault("max_entries", defaults.MaxEntries)
	v.SetDefault("max_depth", defaults.MaxDepth)
	v.SetDefault("max_text_kb", defaults.MaxTextKB)
	v.SetDefault("duplication_window", defaults.DuplicationWindow)
	v.SetDefault("concurrency", defaults.Concurrency)
	v.SetDefault("exclude", []string{})
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.use_ssl", defaults.S3.UseSSL)

	v.SetConfigName("codewarden")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}

		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "codewarden"))
		}
	}

	// CODEWARDEN_S3_ACCESS_KEY maps to s3.access_key
	v.SetEnvPrefix("CODEWARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Concurrency = clamp(cfg.Concurrency, minConcurrency, maxConcurrency)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"both": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid format: %s (must be text, json, or both)", c.Format)
	}

	if !validBackends[c.StoreBackend] {
		return fmt.Errorf("invalid store_backend: %s (must be file, sqlite, or memory)", c.StoreBackend)
	}

	if c.FailThreshold < 0 {
		return fmt.Errorf("fail_threshold cannot be negative")
	}

	if c.LastRuns <= 0 {
		return fmt.Errorf("last_runs must be positive")
	}

	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}

	limits := []struct {
		key   string
		value int
	}{
		{"max_archive_mb", c.MaxArchiveMB},
		{"max_entries", c.MaxEntries},
		{"max_depth", c.MaxDepth},
		{"max_text_kb", c.MaxTextKB},
		{"duplication_window", c.DuplicationWindow},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive", l.key)
		}
	}

	if c.Concurrency < minConcurrency || c.Concurrency > maxConcurrency {
		return fmt.Errorf("concurrency must be between %d and %d", minConcurrency, maxConcurrency)
	}

	return nil
}

// GetStoragePath returns the absolute path to the storage directory
func (c *Config) GetStoragePath() (string, error) {
	if strings.HasPrefix(c.StorageDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, c.StorageDir[2:]), nil
	}

	absPath, err := filepath.Abs(c.StorageDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	return absPath, nil
}

// MaxArchiveBytes converts max_archive_mb to bytes
func (c *Config) MaxArchiveBytes() int64 {
	return int64(c.MaxArchiveMB) << 20
}

// MaxTextBytes converts max_text_kb to bytes
func (c *Config) MaxTextBytes() int64 {
	return int64(c.MaxTextKB) << 10
}

// ShouldFailOnThreshold checks if the issue count exceeds the threshold
func (c *Config) ShouldFailOnThreshold(issueCount int) bool {
	if c.FailThreshold == 0 {
		return false
	}
	return issueCount > c.FailThreshold
}

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() string {
	return `# codewarden configuration
# Save this file as ~/codewarden.yaml or ./codewarden.yaml

# Directory for run history and the integrity baseline
storage_dir: .codewarden

# Integrity baseline backend: file, sqlite, or memory
store_backend: file

# Fail threshold for CI/CD (exit code 1 if issues exceed this number)
# Set to 0 to disable threshold checking
fail_threshold: 50

# Output format: text, json, or both
format: text

# Number of stored runs used for trends
last_runs: 7

verbose: false
debug: false

# Custom rules (YAML file or directory) merged over the builtin catalog
# rules_path: ./rules

# Archive limits
max_archive_mb: 100
max_entries: 10000
max_depth: 20
max_text_kb: 2048

# Minimum number of identical lines reported as duplication
duplication_window: 6

# Parallel file scans (1-16)
concurrency: 4

# Extra glob patterns skipped during collection
exclude:
  - "**/testdata/**"

# Credentials for s3:// archive sources
# Can also be set via CODEWARDEN_S3_ACCESS_KEY etc.
# s3:
#   endpoint: s3.amazonaws.com
#   access_key: AKIA...
#   secret_key: ...
#   use_ssl: true
`
}
