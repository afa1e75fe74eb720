package cli

import (
	"github.com/treediff/treediff/pkg/config"
)

// loadConfig loads configuration from the file given by the global flag,
// falling back to the default location
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyCompareFlags overrides config values with command-line flags
func applyCompareFlags(cfg *config.Config) {
	if len(compareFlags.Exclude) > 0 {
		cfg.Scan.Exclude = compareFlags.Exclude
	}

	if compareFlags.FollowSymlinks {
		cfg.Scan.FollowSymlinks = true
	}

	if compareFlags.VerifyHash {
		cfg.Compare.VerifyHash = true
	}

	if compareFlags.Workers > 0 {
		cfg.Performance.MaxWorkers = compareFlags.Workers
	} else if cfg.Performance.MaxWorkers == 0 {
		cfg.Performance.MaxWorkers = 4
	}

	if compareFlags.BandwidthLimit > 0 {
		cfg.Performance.BandwidthLimit = compareFlags.BandwidthLimit
	}

	if compareFlags.Output != "" {
		cfg.Output.Format = compareFlags.Output
	}

	// Progress bars interleave badly with JSON on the same terminal
	if cfg.Output.Format == "json" {
		cfg.Output.Progress = false
	}

	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}

	if globalFlags.Verbose {
		cfg.Logging.Level = "debug"
	}
}
