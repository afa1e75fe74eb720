package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/treediff/treediff/internal/platform"
	"github.com/treediff/treediff/pkg/config"
	"github.com/treediff/treediff/pkg/diff"
	"github.com/treediff/treediff/pkg/hashcache"
	"github.com/treediff/treediff/pkg/logging"
	"github.com/treediff/treediff/pkg/output"
	"github.com/treediff/treediff/pkg/ratelimit"
	"github.com/treediff/treediff/pkg/scan"
	"github.com/treediff/treediff/pkg/vfs"
)

// CompareFlags holds compare command flag values
type CompareFlags struct {
	Base           string
	Exclude        []string
	VerifyHash     bool
	FollowSymlinks bool
	Workers        int
	BandwidthLimit int64
	Output         string
	Report         string
	NoCache        bool
}

var compareFlags CompareFlags

// NewCompareCommand creates the compare command
func NewCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare LEFT RIGHT",
		Short: "Compare two file trees and report differences",
		Long: `Compare two file trees and report per-path differences.

Each location can be a local directory, a ZIP or TAR archive,
an s3:// bucket prefix, or a dav:// / davs:// WebDAV URL.
With --base a third tree serves as common ancestor and the
comparison becomes three-way, reporting which side diverged.

Exits with status 1 when the trees differ.`,
		Args: cobra.ExactArgs(2),
		RunE: runCompare,
	}

	cmd.Flags().StringVar(&compareFlags.Base, "base", "", "common ancestor tree for three-way comparison")
	cmd.Flags().StringSliceVar(&compareFlags.Exclude, "exclude", []string{}, "glob patterns to exclude")
	cmd.Flags().BoolVar(&compareFlags.VerifyHash, "verify-hash", false, "hash contents even when size and mtime match")
	cmd.Flags().BoolVar(&compareFlags.FollowSymlinks, "follow-symlinks", false, "descend into symlinked directories")
	cmd.Flags().IntVar(&compareFlags.Workers, "workers", 0, "number of parallel hash workers")
	cmd.Flags().Int64Var(&compareFlags.BandwidthLimit, "bwlimit", 0, "read bandwidth limit in bytes per second")
	cmd.Flags().StringVarP(&compareFlags.Output, "output", "o", "", "output format: human, json")
	cmd.Flags().StringVar(&compareFlags.Report, "report", "", "write report to file")
	cmd.Flags().BoolVar(&compareFlags.NoCache, "no-cache", false, "disable the persistent hash cache")

	return cmd
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCompareFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}

	engine := diff.NewEngine(cache, diff.Options{
		VerifyHash:    cfg.Compare.VerifyHash,
		MaxWorkers:    cfg.Performance.MaxWorkers,
		ModTimeWindow: cfg.Compare.ModTimeWindow,
	}, logger)

	if limiter := ratelimit.NewLimiter(cfg.Performance.BandwidthLimit); limiter != nil {
		engine.SetReaderWrapper(limiter.Wrap)
	}

	var progress *output.Progress
	if cfg.Output.Progress && !cfg.Output.Quiet {
		progress = output.NewProgress(os.Stderr)
		engine.SetProgressCallback(progress.Callback())
	}

	scanner := scan.New(scan.Options{
		IgnorePatterns: cfg.Scan.Exclude,
		UseIgnoreFile:  cfg.Scan.UseIgnoreFile,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
	}, logger)

	left, err := openLocation(args[0])
	if err != nil {
		return fmt.Errorf("failed to open left location: %w", err)
	}
	defer left.Close()

	right, err := openLocation(args[1])
	if err != nil {
		return fmt.Errorf("failed to open right location: %w", err)
	}
	defer right.Close()

	differs := false
	if compareFlags.Base != "" {
		differs, err = runThreeWay(ctx, engine, scanner, left, right, cfg)
	} else {
		differs, err = runTwoWay(ctx, engine, scanner, left, right, cfg)
	}
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	if persistErr := engine.PersistCache(); persistErr != nil {
		logger.Warn("failed to persist hash cache", zap.Error(persistErr))
	}

	if differs {
		os.Exit(1)
	}
	return nil
}

func runTwoWay(ctx context.Context, engine *diff.Engine, scanner *scan.Scanner, left, right vfs.FS, cfg *config.Config) (bool, error) {
	report, err := engine.CompareTrees(ctx, left, right, "", "", scanner)
	if err != nil {
		return false, fmt.Errorf("comparison failed: %w", err)
	}

	formatter, err := output.New(cfg.Output.Format)
	if err != nil {
		return false, err
	}

	if !cfg.Output.Quiet {
		if err := formatter.Write(os.Stdout, report); err != nil {
			return false, fmt.Errorf("failed to write report: %w", err)
		}
	}

	if compareFlags.Report != "" {
		file, err := os.Create(compareFlags.Report)
		if err != nil {
			return false, fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		if err := formatter.Write(file, report); err != nil {
			return false, fmt.Errorf("failed to write report file: %w", err)
		}
	}

	return report.HasDifferences(), nil
}

func runThreeWay(ctx context.Context, engine *diff.Engine, scanner *scan.Scanner, left, right vfs.FS, cfg *config.Config) (bool, error) {
	base, err := openLocation(compareFlags.Base)
	if err != nil {
		return false, fmt.Errorf("failed to open base location: %w", err)
	}
	defer base.Close()

	sides := make([]diff.Side, 3)
	for i, fsys := range []vfs.FS{base, left, right} {
		entries, err := scanner.Scan(ctx, fsys, "")
		if err != nil {
			return false, fmt.Errorf("scan failed: %w", err)
		}
		sides[i] = diff.Side{FS: fsys, Entries: entries}
	}

	nodes, err := engine.CompareThreeWay(ctx, sides[0], sides[1], sides[2])
	if err != nil {
		return false, fmt.Errorf("comparison failed: %w", err)
	}

	if !cfg.Output.Quiet {
		if err := output.WriteThreeWay(os.Stdout, nodes, cfg.Output.Format); err != nil {
			return false, fmt.Errorf("failed to write report: %w", err)
		}
	}

	if compareFlags.Report != "" {
		file, err := os.Create(compareFlags.Report)
		if err != nil {
			return false, fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		if err := output.WriteThreeWay(file, nodes, cfg.Output.Format); err != nil {
			return false, fmt.Errorf("failed to write report file: %w", err)
		}
	}

	for _, node := range nodes {
		if node.Status != diff.AllSame {
			return true, nil
		}
	}
	return false, nil
}

// openCache opens the persistent hash cache, or an in-memory one when
// caching is disabled
func openCache(cfg *config.Config, logger *zap.Logger) (*hashcache.Cache, error) {
	if compareFlags.NoCache {
		return hashcache.NewMemory(), nil
	}

	dir, err := platform.CacheDir(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	return hashcache.New(dir, logger)
}
