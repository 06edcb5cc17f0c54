package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/issue"
	"github.com/boshu2/featwatch/internal/logging"
	"github.com/boshu2/featwatch/internal/types"
)

var issueDraftsFile string

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "File the review issue from draft records",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the review issue for a set of drafts",
	Long: `Render the action-items template with the given draft records and file
the review issue. Use this to re-file an issue from a run's drafts.json
artifact when issue creation failed mid-run.

The template must resolve (COPILOT_ACTION_ITEMS_TEMPLATE or
issue.template_file); there is no built-in fallback body.

Examples:
  fw issue create --drafts .featwatch/artifacts/run/<run-id>/drafts.json
  fw issue create --drafts drafts.json --dry-run`,
	RunE: runIssueCreate,
}

func init() {
	issueCmd.GroupID = "review"
	issueCreateCmd.Flags().StringVar(&issueDraftsFile, "drafts", "", "Drafts JSON file (required)")
	_ = issueCreateCmd.MarkFlagRequired("drafts")
	issueCmd.AddCommand(issueCreateCmd)
	rootCmd.AddCommand(issueCmd)
}

func runIssueCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(issueDraftsFile)
	if err != nil {
		return fmt.Errorf("read drafts: %w", err)
	}
	var drafts []types.DraftRecord
	if err := json.Unmarshal(data, &drafts); err != nil {
		return fmt.Errorf("parse drafts: %w", err)
	}
	if len(drafts) == 0 {
		return fmt.Errorf("no drafts in %s", issueDraftsFile)
	}

	report := &types.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Drafts:    len(drafts),
	}

	if GetDryRun() {
		tmplBody, err := issue.ResolveTemplate(cfg.Issue.TemplateFile)
		if err != nil {
			return err
		}
		body, err := issue.Render(tmplBody, report, drafts, nil)
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	}

	logger := logging.New(GetVerbose())
	defer logger.Sync() //nolint:errcheck // stderr sync

	token := os.Getenv(config.TokenEnvVar)
	creator := issue.NewCreator(cmd.Context(), token, cfg.Issue, logger)
	url, err := creator.Create(cmd.Context(), report, drafts, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Review issue: %s\n", url)
	return nil
}
