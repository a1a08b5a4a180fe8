package main

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// newRootCommand builds the command tree. Flags default to the values
// already read from the environment.
func newRootCommand(cfg *config) *cobra.Command {
	root := &cobra.Command{
		Use:   "assetctl",
		Short: "Inspect and warm the local 3D asset cache",
		Long: `
assetctl fetches assets from the CDN into the local cache, reports cache
usage and endpoint health, and prints the HTTP caching headers for each
asset type.

Configuration is read from ASSETS_* environment variables and can be
overridden with flags.
`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&cfg.Environment, "env", cfg.Environment, "environment: production, staging or development")
	f.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "cache directory")
	f.StringVar(&cfg.PolicyFile, "policy", cfg.PolicyFile, "YAML policy file")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	f.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "log as JSON")
	f.StringVar(&cfg.Journal, "journal", cfg.Journal, "cache journal: file or sqlite")
	f.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite journal path")
	f.StringVar(&cfg.PrimaryURL, "primary-url", cfg.PrimaryURL, "override the primary endpoint")
	f.StringVar(&cfg.FallbackURL, "fallback-url", cfg.FallbackURL, "override the fallback endpoint")

	root.AddCommand(
		newFetchCommand(cfg),
		newPreloadCommand(cfg),
		newHealthCommand(cfg),
		newHeadersCommand(cfg),
		newStatsCommand(cfg),
		newPurgeCommand(cfg),
	)
	return root
}
