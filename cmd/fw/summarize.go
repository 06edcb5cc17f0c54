package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/classify"
	"github.com/boshu2/featwatch/internal/cleaner"
	"github.com/boshu2/featwatch/internal/logging"
	"github.com/boshu2/featwatch/internal/summarize"
	"github.com/boshu2/featwatch/internal/types"
)

var summarizeItemsFile string

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize items into draft records",
	Long: `Clean, classify, and summarize a file of items (the items.json a run
writes under artifacts/) into draft feature records, printed as JSON.

Useful for reprocessing a run's artifacts after a summarizer failure
without re-fetching the sources.

Requires OPENAI_API_KEY.

Examples:
  fw summarize --items .featwatch/artifacts/changelog/<run-id>/items.json
  fw summarize --items items.json > drafts.json`,
	RunE: runSummarize,
}

func init() {
	summarizeCmd.GroupID = "pipeline"
	summarizeCmd.Flags().StringVar(&summarizeItemsFile, "items", "", "Items JSON file to summarize (required)")
	_ = summarizeCmd.MarkFlagRequired("items")
	rootCmd.AddCommand(summarizeCmd)
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for summarization")
	}

	data, err := os.ReadFile(summarizeItemsFile)
	if err != nil {
		return fmt.Errorf("read items: %w", err)
	}
	var items []types.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse items: %w", err)
	}

	logger := logging.New(GetVerbose())
	defer logger.Sync() //nolint:errcheck // stderr sync

	s := summarize.New(apiKey, cfg.Summarize.Model, logger)

	var drafts []types.DraftRecord
	for _, item := range items {
		cleaned := cleaner.Clean(item.RawContent)
		routing := classify.Classify(cleaned.Text, cfg.Classify.CrossListing)
		if len(routing.Tables) == 0 {
			fmt.Fprintf(os.Stderr, "no table signal, skipping: %s\n", item.Title)
			continue
		}
		draft, err := s.Summarize(cmd.Context(), item, cleaned, routing)
		if err != nil {
			fmt.Fprintf(os.Stderr, "summarize %q: %v\n", item.Title, err)
			continue
		}
		drafts = append(drafts, *draft)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(drafts)
}
