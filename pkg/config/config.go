package config

import (
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Scan        ScanConfig        `yaml:"scan"`
	Compare     CompareConfig     `yaml:"compare"`
	Cache       CacheConfig       `yaml:"cache"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ScanConfig holds tree-walking settings
type ScanConfig struct {
	Exclude        []string `yaml:"exclude"`
	UseIgnoreFile  bool     `yaml:"use_ignore_file"`
	FollowSymlinks bool     `yaml:"follow_symlinks"`
}

// CompareConfig holds comparison settings
type CompareConfig struct {
	// VerifyHash forces content hashing even when size and mtime match
	VerifyHash bool `yaml:"verify_hash"`

	// ModTimeWindow is the tolerance for treating modification times as
	// equal, to absorb filesystem timestamp precision differences
	ModTimeWindow time.Duration `yaml:"modtime_window"`
}

// CacheConfig holds hash cache settings
type CacheConfig struct {
	// Dir is the cache directory; empty selects the platform default
	Dir string `yaml:"dir"`
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	MaxWorkers     int   `yaml:"max_workers"`
	BandwidthLimit int64 `yaml:"bandwidth_limit"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Quiet    bool   `yaml:"quiet"`    // Suppress non-error output
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// ValidationError describes an invalid configuration field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Exclude: []string{
				"*.tmp",
				".git/",
			},
			UseIgnoreFile: true,
		},
		Compare: CompareConfig{
			VerifyHash:    false,
			ModTimeWindow: time.Second,
		},
		Performance: PerformanceConfig{
			MaxWorkers: 4,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Performance.MaxWorkers < 1 {
		return &ValidationError{
			Field:   "performance.max_workers",
			Message: "must be at least 1",
		}
	}

	if c.Compare.ModTimeWindow < 0 {
		return &ValidationError{
			Field:   "compare.modtime_window",
			Message: "must not be negative",
		}
	}

	if c.Performance.BandwidthLimit < 0 {
		return &ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: "must not be negative",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return &ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'console'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	return nil
}
