package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const starterConfig = `# featwatch configuration
# Precedence: flags > environment > this file > ~/.featwatch/config.yaml > defaults

sources:
  repos:
    - name: VS Code
      repo: microsoft/vscode
  feeds:
    - name: GitHub Changelog
      url: https://github.blog/changelog/feed/

classify:
  # both: ambiguous content lands in both tables with a cross-reference note
  # primary: only the stronger-signal table
  cross_listing: both

summarize:
  model: gpt-4o-mini
  # max_items: 50

issue:
  repo: owner/tracking-repo
  # assignee: reviewer-login
  template_file: .github/templates/copilot_action_items.md

paths:
  matrix_file: copilot-feature-matrix.md
  ide_json_file: copilot-ide-features.json
  platform_json_file: copilot-agent-features.json
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold config and data directories",
	Long: `Create the .featwatch data directory and a starter config.yaml.

Existing files are left alone; init is safe to re-run.

After init:
  1. Edit .featwatch/config.yaml with your sources and tracking repo
  2. Provide the action-items template (issue.template_file or the
     COPILOT_ACTION_ITEMS_TEMPLATE variable)
  3. Set OPENAI_API_KEY, and GITHUB_TOKEN / PERSONAL_ACCESS_TOKEN as needed
  4. fw run --dry-run`,
	RunE: runInit,
}

func init() {
	initCmd.GroupID = "setup"
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	baseDir := ".featwatch"
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "artifacts")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	cfgPath := filepath.Join(baseDir, "config.yaml")
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("%s already exists, leaving it alone.\n", cfgPath)
		return nil
	}

	if GetDryRun() {
		fmt.Printf("Would create %s\n", cfgPath)
		return nil
	}

	if err := os.WriteFile(cfgPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Created %s\n", cfgPath)
	fmt.Println("Next: edit the sources and tracking repo, then run `fw run --dry-run`.")
	return nil
}
