package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/config"
)

var (
	// Global flags
	dryRun  bool
	verbose bool
	output  string
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fw",
	Short: "Copilot feature matrix automation",
	Long: `fw keeps an AI-assistant feature matrix current.

It watches release notes and changelogs, extracts feature announcements,
summarizes them into structured records, and files a review issue. Approved
records are then applied to the matrix; fw never edits the matrix without a
human in the loop.

Pipeline Commands:
  run          Run the full pipeline (scan, clean, summarize, file issue)
  scan         Diff monitored repositories for new release notes
  feeds        Work with monitored RSS/Atom feeds
  summarize    Summarize items into draft records

Review Commands:
  issue        File the review issue from draft records
  matrix       Apply, check, and render the feature matrix

Setup:
  init         Scaffold config and data directories
  status       Show markers, sources, and the last run`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		syncConfigFlagToEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "review", Title: "Review:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Show what would happen without executing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .featwatch/config.yaml)")
}

// GetDryRun returns the dry-run flag value for use by subcommands.
func GetDryRun() bool {
	return dryRun
}

// GetVerbose returns the verbose flag value for use by subcommands.
func GetVerbose() bool {
	return verbose
}

// GetOutput returns the output format for use by subcommands.
func GetOutput() string {
	return output
}

// GetConfigFile returns the config file path for use by subcommands.
func GetConfigFile() string {
	return cfgFile
}

// VerbosePrintf prints only when verbose mode is enabled.
func VerbosePrintf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

func syncConfigFlagToEnv() {
	path := strings.TrimSpace(GetConfigFile())
	if path == "" {
		return
	}
	_ = os.Setenv("FEATWATCH_CONFIG", path)
}

// loadConfig resolves configuration with the global flags applied on top.
// Only explicitly-set flags go into the overrides: the merge chain treats
// every override value as authoritative, so passing a flag's default would
// shadow the env and file layers beneath it.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{
		Verbose: GetVerbose(),
	}
	if rootCmd.PersistentFlags().Changed("output") {
		overrides.Output = GetOutput()
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
