package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treediff/treediff/internal/platform"
	"github.com/treediff/treediff/pkg/hashcache"
	"github.com/treediff/treediff/pkg/logging"
)

// NewCacheCommand creates the cache command
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent hash cache",
	}

	cmd.AddCommand(newCacheShowCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show cache location and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := defaultCache()
			if err != nil {
				return err
			}

			fmt.Printf("Cache file: %s\n", cache.Path())
			fmt.Printf("Entries:    %d\n", cache.Len())

			if info, err := os.Stat(cache.Path()); err == nil {
				fmt.Printf("Size:       %d bytes\n", info.Size())
			} else {
				fmt.Printf("Size:       0 bytes (no cache file)\n")
			}

			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := defaultCache()
			if err != nil {
				return err
			}

			if err := cache.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			fmt.Println("Hash cache cleared")
			return nil
		},
	}
}

func defaultCache() (*hashcache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := platform.CacheDir(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	return hashcache.New(dir, logging.Nop())
}
