package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig holds local persistence configuration
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"` // BoltDB and legacy cache location
}

// FeedConfig holds feed fetching configuration
type FeedConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`    // First-profile request deadline
	MaxAttempts       int     `mapstructure:"max_attempts"`       // Attempts per profile
	BaseDelayMillis   int     `mapstructure:"base_delay_ms"`      // Backoff before the second attempt
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"` // Backoff growth factor
}

// Timeout returns the first-profile request deadline.
func (c FeedConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BaseDelay returns the backoff before the second attempt.
func (c FeedConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// CacheConfig holds cache behavior configuration
type CacheConfig struct {
	MinTTLMinutes int `mapstructure:"min_ttl_minutes"` // How long a fetch stays fresh
	MaxParallel   int `mapstructure:"max_parallel"`    // Batch refresh concurrency
}

// MinTTL returns how long a successful fetch stays fresh.
func (c CacheConfig) MinTTL() time.Duration {
	return time.Duration(c.MinTTLMinutes) * time.Minute
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: defaultDataPath(),
		},
		Feed: FeedConfig{
			TimeoutSeconds:    30,
			MaxAttempts:       3,
			BaseDelayMillis:   2000,
			BackoffMultiplier: 2,
		},
		Cache: CacheConfig{
			MinTTLMinutes: 60,
			MaxParallel:   4,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "podkeep", "podkeep.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "podkeep", "podkeep.log")
	}
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "podkeep")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "podkeep")
	}
}

// defaultDataPath returns the default data directory path for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "podkeep")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "podkeep")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("PODKEEP")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	viper.Set("storage.data_dir", cfg.Storage.DataDir)

	viper.Set("feed.timeout_seconds", cfg.Feed.TimeoutSeconds)
	viper.Set("feed.max_attempts", cfg.Feed.MaxAttempts)
	viper.Set("feed.base_delay_ms", cfg.Feed.BaseDelayMillis)
	viper.Set("feed.backoff_multiplier", cfg.Feed.BackoffMultiplier)

	viper.Set("cache.min_ttl_minutes", cfg.Cache.MinTTLMinutes)
	viper.Set("cache.max_parallel", cfg.Cache.MaxParallel)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
