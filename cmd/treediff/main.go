package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/treediff/treediff/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "treediff",
		Short: "Compare file trees across storage backends",
		Long: `treediff compares file trees and reports per-path differences.
Trees can live on the local filesystem, inside ZIP or TAR archives,
in S3-compatible object storage, or on WebDAV servers. Content hashes
are cached between runs so unchanged files are never re-read.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cli.AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(cli.NewCompareCommand())
	rootCmd.AddCommand(cli.NewCacheCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	rootCmd.AddCommand(cli.NewVersionCommand())

	return rootCmd.Execute()
}
