package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the query, embedding and document cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [pattern]",
	Short: "Delete cache entries matching a glob pattern",
	Long: `Delete cache entries whose key matches a Redis-style glob. Keys look like
"query:<text>", "embedding:<text>" and "document:<id>". Without a pattern the
whole cache is cleared.

Examples:
  finrag cache clear
  finrag cache clear "query:*"
  finrag cache clear "document:*"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if !cfg.Cache.Enabled {
		return fmt.Errorf("cache is disabled in config")
	}

	c, err := newCache(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("cache backend %s is not reachable", cfg.Cache.Backend)
	}
	defer c.Close()

	pattern := "*"
	if len(args) > 0 {
		pattern = args[0]
	}

	n, err := c.Clear(cmd.Context(), pattern)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Printf("Deleted %d cache entries matching %q\n", n, pattern)
	return nil
}
