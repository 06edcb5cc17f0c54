package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/formatter"
	"github.com/boshu2/featwatch/internal/logging"
	"github.com/boshu2/featwatch/internal/pipeline"
	"github.com/boshu2/featwatch/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline",
	Long: `Fetch new content from every monitored source, clean and classify it,
summarize it into draft feature records, and file the review issue.

The run is idempotent: source markers and seen-item keys only advance after
the issue exists, so an interrupted run re-emits the same items instead of
losing them. A second run over the same content produces nothing new.

Requires:
  OPENAI_API_KEY                   for summarization
  GITHUB_TOKEN                     for the GitHub API (optional for public repos)
  PERSONAL_ACCESS_TOKEN            to assign the review issue (optional)
  COPILOT_ACTION_ITEMS_TEMPLATE    or issue.template_file; without either
                                   the run fails before any API spend

Examples:
  fw run
  fw run --dry-run
  fw run -v`,
	RunE: runRun,
}

func init() {
	runCmd.GroupID = "pipeline"
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(GetVerbose())
	defer logger.Sync() //nolint:errcheck // stderr sync

	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-mostly close

	p := pipeline.New(cmd.Context(), cfg, store, logger, pipeline.Options{DryRun: GetDryRun()})
	out, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	if GetOutput() == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Report)
	}

	fmt.Printf("Run %s\n\n", out.Report.RunID)
	table := formatter.NewTable(os.Stdout, "SOURCE", "KIND", "NEW", "SKIPPED", "STATUS")
	for _, s := range out.Report.Sources {
		status := "ok"
		if s.Err != "" {
			status = "failed: " + s.Err
		}
		table.AddRow(s.Source, string(s.Kind), fmt.Sprint(s.Fetched), fmt.Sprint(s.Skipped), status)
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Printf("\nDrafts: %d  Manual review: %d\n", out.Report.Drafts, out.Report.ManualReview)
	if out.IssueURL != "" {
		fmt.Printf("Review issue: %s\n", out.IssueURL)
	} else if GetDryRun() {
		fmt.Println("Dry run: no issue filed, no state advanced.")
	} else {
		fmt.Println("No new content; no issue filed.")
	}
	return nil
}
