package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Output and scratch locations
	OutputRoot string `mapstructure:"output-root"`
	WorkDir    string `mapstructure:"work-dir"`

	// Run database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// S3 firmware source
	S3Bucket string `mapstructure:"s3-bucket"`
	S3Region string `mapstructure:"s3-region"`

	// External tools
	SevenZipPath string `mapstructure:"sevenzip-path"`

	// Archive safety limits
	MaxFileSize         int64   `mapstructure:"max-file-size"`
	MaxTotalSize        int64   `mapstructure:"max-total-size"`
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`

	// Keep temp directories for post-mortem inspection
	Debug bool `mapstructure:"debug"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("output-root", "dumps")
	viper.SetDefault("work-dir", ".artifacts/work")
	viper.SetDefault("sqlite-path", ".artifacts/dumps.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm.db")
	viper.SetDefault("s3-bucket", "")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("sevenzip-path", "7z")
	viper.SetDefault("max-file-size", 16*1024*1024*1024)
	viper.SetDefault("max-total-size", 64*1024*1024*1024)
	viper.SetDefault("max-compression-ratio", 200.0)
	viper.SetDefault("debug", false)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (FWDUMP_OUTPUT_ROOT, etc.)
	viper.SetEnvPrefix("FWDUMP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.fwdump")

	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.OutputRoot == "" {
		return fmt.Errorf("output-root cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.SevenZipPath == "" {
		return fmt.Errorf("sevenzip-path cannot be empty")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	if c.MaxCompressionRatio <= 0 {
		return fmt.Errorf("max-compression-ratio must be positive")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
