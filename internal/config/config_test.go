package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Output != "table" {
		t.Errorf("expected default output table, got %s", cfg.Output)
	}
	if cfg.BaseDir != ".featwatch" {
		t.Errorf("expected default base dir .featwatch, got %s", cfg.BaseDir)
	}
	if cfg.Classify.CrossListing != "both" {
		t.Errorf("expected cross_listing both, got %s", cfg.Classify.CrossListing)
	}
	if cfg.Issue.TemplateFile != filepath.Join(".github", "templates", "copilot_action_items.md") {
		t.Errorf("unexpected template file default: %s", cfg.Issue.TemplateFile)
	}
	if cfg.Paths.MatrixFile != "copilot-feature-matrix.md" {
		t.Errorf("unexpected matrix file default: %s", cfg.Paths.MatrixFile)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
output: json
sources:
  repos:
    - name: VS Code
      repo: microsoft/vscode
  feeds:
    - name: Changelog
      url: https://example.com/feed.xml
issue:
  repo: acme/feature-matrix
  assignee: matrix-bot
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("loadFromPath failed: %v", err)
	}
	if cfg.Output != "json" {
		t.Errorf("expected output json, got %s", cfg.Output)
	}
	if len(cfg.Sources.Repos) != 1 || cfg.Sources.Repos[0].Repo != "microsoft/vscode" {
		t.Errorf("repos not parsed: %+v", cfg.Sources.Repos)
	}
	if len(cfg.Sources.Feeds) != 1 || cfg.Sources.Feeds[0].URL != "https://example.com/feed.xml" {
		t.Errorf("feeds not parsed: %+v", cfg.Sources.Feeds)
	}
	if cfg.Issue.Assignee != "matrix-bot" {
		t.Errorf("assignee not parsed: %s", cfg.Issue.Assignee)
	}
}

func TestMergePrecedence(t *testing.T) {
	dst := Default()
	src := &Config{
		Output: "json",
		Sources: SourcesConfig{
			Feeds: []FeedSource{{Name: "A", URL: "https://a.example/feed"}},
		},
		Issue: IssueConfig{Repo: "acme/tracker"},
	}
	merged := merge(dst, src)

	if merged.Output != "json" {
		t.Errorf("src output should win, got %s", merged.Output)
	}
	if merged.BaseDir != ".featwatch" {
		t.Errorf("unset src fields should not clobber defaults, got %s", merged.BaseDir)
	}
	if len(merged.Sources.Feeds) != 1 {
		t.Errorf("feeds should be replaced when src has any, got %+v", merged.Sources.Feeds)
	}
	if merged.Issue.Repo != "acme/tracker" {
		t.Errorf("issue repo should merge, got %s", merged.Issue.Repo)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FEATWATCH_OUTPUT", "json")
	t.Setenv("FEATWATCH_VERBOSE", "1")
	t.Setenv("FEATWATCH_ISSUE_REPO", "acme/tracker")

	cfg := applyEnv(Default())
	if cfg.Output != "json" {
		t.Errorf("env output not applied: %s", cfg.Output)
	}
	if !cfg.Verbose {
		t.Error("env verbose not applied")
	}
	if cfg.Issue.Repo != "acme/tracker" {
		t.Errorf("env issue repo not applied: %s", cfg.Issue.Repo)
	}
}
