// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-brief/internal/feed"
	"github.com/pdiddy/research-brief/internal/metrics"
	"github.com/pdiddy/research-brief/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <feed-url>...",
	Short: "Fetch RSS or Atom feeds and list their entries",
	Long: `Fetch downloads and parses each feed and prints one row per entry.
Feeds that cannot be fetched or parsed are logged and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

var discoverFeedsCmd = &cobra.Command{
	Use:   "discover-feeds <page-url>",
	Short: "Find the feeds a website advertises or serves at common paths",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscoverFeeds,
}

func init() {
	fetchCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 15s)")
	discoverFeedsCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 15s)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(discoverFeedsCmd)
}

func httpConfig(cmd *cobra.Command) (types.HTTPConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return types.HTTPConfig{}, err
	}
	h := cfg.Acquisition.HTTPConfig
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		h.Timeout = v
	}
	return h, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	h, err := httpConfig(cmd)
	if err != nil {
		return err
	}
	m := metrics.New()
	items, failed := feed.New(h, logger, m).Fetch(context.Background(), args)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHED\tSOURCE\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", publishedDate(it.Published), types.Truncate(it.Source, 40), types.Truncate(it.Title, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d items from %d feed(s), %d failed\n", len(items), len(args), failed)
	return nil
}

// publishedDate shortens RFC 1123 and RFC 3339 timestamps to a date.
func publishedDate(s string) string {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if s == "" {
		return "-"
	}
	return types.Truncate(s, 16)
}

func runDiscoverFeeds(cmd *cobra.Command, args []string) error {
	h, err := httpConfig(cmd)
	if err != nil {
		return err
	}
	feeds := feed.New(h, logger, metrics.New()).Discover(context.Background(), args[0])
	if len(feeds) == 0 {
		return fmt.Errorf("no feeds found at %s", args[0])
	}
	for _, f := range feeds {
		fmt.Println(f)
	}
	return nil
}
