// Package config provides configuration management for featwatch.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (FEATWATCH_*)
// 3. Project config (.featwatch/config.yaml in cwd)
// 4. Home config (~/.featwatch/config.yaml)
// 5. Defaults
//
// Secrets (OPENAI_API_KEY, PERSONAL_ACCESS_TOKEN) are never read from config
// files; they come from the environment, with a best-effort .env load for
// local development.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RepoSource is a monitored GitHub repository.
type RepoSource struct {
	// Name is the display name used in reports and attribution.
	Name string `yaml:"name" json:"name"`

	// Repo is the repository in owner/repo form.
	Repo string `yaml:"repo" json:"repo"`
}

// FeedSource is a monitored RSS/Atom feed.
type FeedSource struct {
	// Name is the display name used in reports and attribution.
	Name string `yaml:"name" json:"name"`

	// URL is the feed URL.
	URL string `yaml:"url" json:"url"`
}

// SourcesConfig lists the monitored sources.
type SourcesConfig struct {
	Repos []RepoSource `yaml:"repos" json:"repos"`
	Feeds []FeedSource `yaml:"feeds" json:"feeds"`
}

// ClassifyConfig holds classification policy.
type ClassifyConfig struct {
	// CrossListing controls where ambiguous content goes.
	// Values: "both" (default, list in both tables with a note), "primary"
	// (list only in the stronger-signal table).
	CrossListing string `yaml:"cross_listing" json:"cross_listing"`
}

// SummarizeConfig holds AI summarizer settings.
type SummarizeConfig struct {
	// Model is the chat completion model.
	Model string `yaml:"model" json:"model"`

	// MaxItems caps how many items are summarized per run (0 = no cap).
	MaxItems int `yaml:"max_items" json:"max_items"`
}

// IssueConfig holds review-issue settings.
type IssueConfig struct {
	// Repo is the tracking repository (owner/repo) issues are filed against.
	Repo string `yaml:"repo" json:"repo"`

	// Assignee is the reviewer identity assigned to generated issues.
	// Assignment requires PERSONAL_ACCESS_TOKEN; without it issues are
	// created unassigned.
	Assignee string `yaml:"assignee" json:"assignee"`

	// TemplateFile is the action-items template path. There is no
	// hardcoded default body: when neither the template variable nor this
	// file resolves, issue creation fails.
	TemplateFile string `yaml:"template_file" json:"template_file"`
}

// PathsConfig holds output and state paths.
type PathsConfig struct {
	// MatrixFile is the canonical markdown matrix document.
	MatrixFile string `yaml:"matrix_file" json:"matrix_file"`

	// IDEJSONFile is the IDE features JSON output.
	IDEJSONFile string `yaml:"ide_json_file" json:"ide_json_file"`

	// PlatformJSONFile is the platform features JSON output.
	PlatformJSONFile string `yaml:"platform_json_file" json:"platform_json_file"`

	// StateDB is the SQLite state database path.
	StateDB string `yaml:"state_db" json:"state_db"`

	// ArtifactsDir is where raw/cleaned per-source artifacts are kept.
	ArtifactsDir string `yaml:"artifacts_dir" json:"artifacts_dir"`
}

// Config holds all featwatch configuration.
type Config struct {
	// Output controls the default CLI output format (table, json).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the featwatch data directory (default: .featwatch).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables verbose output.
	Verbose bool `yaml:"verbose" json:"verbose"`

	Sources   SourcesConfig   `yaml:"sources" json:"sources"`
	Classify  ClassifyConfig  `yaml:"classify" json:"classify"`
	Summarize SummarizeConfig `yaml:"summarize" json:"summarize"`
	Issue     IssueConfig     `yaml:"issue" json:"issue"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput  = "table"
	defaultBaseDir = ".featwatch"
	defaultModel   = "gpt-4o-mini"
)

// TemplateEnvVar is the environment/repository variable holding the
// action-items template body. Checked before Issue.TemplateFile.
const TemplateEnvVar = "COPILOT_ACTION_ITEMS_TEMPLATE"

// TokenEnvVar is the access token enabling issue assignment.
const TokenEnvVar = "PERSONAL_ACCESS_TOKEN"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Classify: ClassifyConfig{
			CrossListing: "both",
		},
		Summarize: SummarizeConfig{
			Model: defaultModel,
		},
		Issue: IssueConfig{
			TemplateFile: filepath.Join(".github", "templates", "copilot_action_items.md"),
		},
		Paths: PathsConfig{
			MatrixFile:       "copilot-feature-matrix.md",
			IDEJSONFile:      "copilot-ide-features.json",
			PlatformJSONFile: "copilot-agent-features.json",
			StateDB:          filepath.Join(defaultBaseDir, "state.db"),
			ArtifactsDir:     filepath.Join(defaultBaseDir, "artifacts"),
		},
	}
}

// Load loads configuration with proper precedence.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	// Pick up a local .env if present; absence is not an error.
	_ = godotenv.Load()

	cfg := Default()

	homeConfig, _ := loadFromPath(homeConfigPath())
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, _ := loadFromPath(projectConfigPath())
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	cfg = applyEnv(cfg)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".featwatch", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("FEATWATCH_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".featwatch", "config.yaml")
}

// loadFromPath loads config from a YAML file.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("FEATWATCH_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("FEATWATCH_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if os.Getenv("FEATWATCH_VERBOSE") == "true" || os.Getenv("FEATWATCH_VERBOSE") == "1" {
		cfg.Verbose = true
	}
	if v := os.Getenv("FEATWATCH_MODEL"); v != "" {
		cfg.Summarize.Model = v
	}
	if v := os.Getenv("FEATWATCH_ISSUE_REPO"); v != "" {
		cfg.Issue.Repo = v
	}
	if v := os.Getenv("FEATWATCH_ISSUE_ASSIGNEE"); v != "" {
		cfg.Issue.Assignee = v
	}
	if v := os.Getenv("FEATWATCH_CROSS_LISTING"); v != "" {
		cfg.Classify.CrossListing = v
	}
	return cfg
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	if src.Verbose {
		dst.Verbose = true
	}

	if len(src.Sources.Repos) > 0 {
		dst.Sources.Repos = src.Sources.Repos
	}
	if len(src.Sources.Feeds) > 0 {
		dst.Sources.Feeds = src.Sources.Feeds
	}

	mergeStr(&dst.Classify.CrossListing, src.Classify.CrossListing)
	mergeStr(&dst.Summarize.Model, src.Summarize.Model)
	mergeInt(&dst.Summarize.MaxItems, src.Summarize.MaxItems)
	mergeStr(&dst.Issue.Repo, src.Issue.Repo)
	mergeStr(&dst.Issue.Assignee, src.Issue.Assignee)
	mergeStr(&dst.Issue.TemplateFile, src.Issue.TemplateFile)
	mergeStr(&dst.Paths.MatrixFile, src.Paths.MatrixFile)
	mergeStr(&dst.Paths.IDEJSONFile, src.Paths.IDEJSONFile)
	mergeStr(&dst.Paths.PlatformJSONFile, src.Paths.PlatformJSONFile)
	mergeStr(&dst.Paths.StateDB, src.Paths.StateDB)
	mergeStr(&dst.Paths.ArtifactsDir, src.Paths.ArtifactsDir)

	return dst
}
