package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/formatter"
	"github.com/boshu2/featwatch/internal/logging"
	"github.com/boshu2/featwatch/internal/scanner"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Diff monitored repositories for new release notes",
	Long: `List the release-note items each monitored repository has published
since its last-seen marker. Read-only: markers never advance here, only
during a full run.

Examples:
  fw scan
  fw scan -o json`,
	RunE: runScan,
}

func init() {
	scanCmd.GroupID = "pipeline"
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Sources.Repos) == 0 {
		return fmt.Errorf("no repositories configured; add sources.repos to %s", ".featwatch/config.yaml")
	}

	logger := logging.New(GetVerbose())
	defer logger.Sync() //nolint:errcheck // stderr sync

	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-only usage

	sc := scanner.New(cmd.Context(), os.Getenv("GITHUB_TOKEN"), logger)

	var items []types.Item
	for _, src := range cfg.Sources.Repos {
		marker, err := store.Marker(src.Name)
		if err != nil {
			return err
		}
		res, err := sc.Scan(cmd.Context(), src, marker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan %s: %v\n", src.Name, err)
			continue
		}
		items = append(items, res.Items...)
	}

	return printItems(items)
}

// printItems renders items as a table or JSON per the output flag.
func printItems(items []types.Item) error {
	if GetOutput() == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("Nothing new since the last markers.")
		return nil
	}

	table := formatter.NewTable(os.Stdout, "SOURCE", "PUBLISHED", "TITLE", "LINK")
	table.SetMaxWidth(2, 60)
	for _, it := range items {
		published := ""
		if !it.PublishedAt.IsZero() {
			published = it.PublishedAt.Format("2006-01-02")
		}
		table.AddRow(it.Source, published, it.Title, it.Link)
	}
	return table.Render()
}
