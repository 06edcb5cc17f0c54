package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/feed"
	"github.com/boshu2/featwatch/internal/formatter"
	"github.com/boshu2/featwatch/internal/logging"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/types"
)

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Work with monitored RSS/Atom feeds",
}

var feedsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch new items from every monitored feed",
	Long: `List the items each monitored feed has published since its last-seen
marker. Read-only: markers never advance here, only during a full run.

Examples:
  fw feeds fetch
  fw feeds fetch -o json`,
	RunE: runFeedsFetch,
}

var feedsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured feeds",
	RunE:  runFeedsList,
}

func init() {
	feedsCmd.GroupID = "pipeline"
	feedsCmd.AddCommand(feedsFetchCmd, feedsListCmd)
	rootCmd.AddCommand(feedsCmd)
}

func runFeedsFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Sources.Feeds) == 0 {
		return fmt.Errorf("no feeds configured; add sources.feeds to %s", ".featwatch/config.yaml")
	}

	logger := logging.New(GetVerbose())
	defer logger.Sync() //nolint:errcheck // stderr sync

	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-only usage

	p := feed.NewProcessor(logger)

	var items []types.Item
	for _, src := range cfg.Sources.Feeds {
		marker, err := store.Marker(src.Name)
		if err != nil {
			return err
		}
		res, err := p.Fetch(cmd.Context(), src, marker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetch %s: %v\n", src.Name, err)
			continue
		}
		items = append(items, res.Items...)
	}

	return printItems(items)
}

func runFeedsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	table := formatter.NewTable(os.Stdout, "NAME", "URL")
	for _, src := range cfg.Sources.Feeds {
		table.AddRow(src.Name, src.URL)
	}
	return table.Render()
}
