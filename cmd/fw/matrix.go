package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/matrix"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/types"
)

var matrixApprovedFile string

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Apply, check, and render the feature matrix",
}

var matrixApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply reviewer-approved records to the matrix",
	Long: `Merge approved draft records into the matrix document and regenerate
the JSON exports. This is the only path that mutates the matrix; fw run
proposes records but never applies them.

Records that would move a feature's status backward along the lifecycle
are rejected individually and reported; the rest of the batch applies.

Examples:
  fw matrix apply --approved approved.json
  fw matrix apply --approved approved.json --dry-run`,
	RunE: runMatrixApply,
}

var matrixCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the matrix document",
	Long: `Parse the matrix document and check the table invariants: no duplicate
capabilities within a table, VS Code rows grouped first in the IDE table,
and both tables in descending update order.

Exits non-zero when an invariant is violated, for use in CI.`,
	RunE: runMatrixCheck,
}

var matrixRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Regenerate the JSON exports from the matrix document",
	RunE:  runMatrixRender,
}

func init() {
	matrixCmd.GroupID = "review"
	matrixApplyCmd.Flags().StringVar(&matrixApprovedFile, "approved", "", "Approved drafts JSON file (required)")
	_ = matrixApplyCmd.MarkFlagRequired("approved")
	matrixCmd.AddCommand(matrixApplyCmd, matrixCheckCmd, matrixRenderCmd)
	rootCmd.AddCommand(matrixCmd)
}

// loadMatrixDoc reads the matrix document; a missing file is an empty
// matrix, not an error, so the first apply bootstraps the document.
func loadMatrixDoc(cfg *config.Config) (string, *matrix.Matrix, error) {
	data, err := os.ReadFile(cfg.Paths.MatrixFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &matrix.Matrix{}, nil
		}
		return "", nil, fmt.Errorf("read matrix document: %w", err)
	}
	content := string(data)
	return content, matrix.ParseDocument(content), nil
}

func runMatrixApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(matrixApprovedFile)
	if err != nil {
		return fmt.Errorf("read approved drafts: %w", err)
	}
	var drafts []types.DraftRecord
	if err := json.Unmarshal(data, &drafts); err != nil {
		return fmt.Errorf("parse approved drafts: %w", err)
	}

	content, m, err := loadMatrixDoc(cfg)
	if err != nil {
		return err
	}

	result := m.Apply(drafts, time.Now())
	for _, r := range result.Rejections {
		fmt.Fprintf(os.Stderr, "rejected %q (%s table): %s\n", r.Record.FeatureCapability, r.Table, r.Reason)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("matrix invalid after apply: %w", err)
	}

	if GetDryRun() {
		fmt.Printf("Would apply %d record(s), reject %d; no files written.\n",
			result.Applied, len(result.Rejections))
		return nil
	}

	if err := writeMatrixOutputs(cfg, content, m); err != nil {
		return err
	}

	if err := recordStatuses(cfg, drafts, result); err != nil {
		return err
	}

	fmt.Printf("Applied %d record(s); %d rejected.\n", result.Applied, len(result.Rejections))
	fmt.Printf("Updated %s\n", cfg.Paths.MatrixFile)
	return nil
}

// writeMatrixOutputs writes the markdown document and both JSON exports
// atomically.
func writeMatrixOutputs(cfg *config.Config, content string, m *matrix.Matrix) error {
	updated := matrix.UpdateDocument(content, m)
	if err := state.WriteFileAtomic(cfg.Paths.MatrixFile, []byte(updated)); err != nil {
		return fmt.Errorf("write matrix document: %w", err)
	}

	now := time.Now()
	feedNames := sourceNames(cfg)

	ideJSON, err := matrix.ExportJSON(m.IDE, "IDE", feedNames, now)
	if err != nil {
		return err
	}
	if err := state.WriteFileAtomic(cfg.Paths.IDEJSONFile, ideJSON); err != nil {
		return fmt.Errorf("write IDE export: %w", err)
	}

	platformJSON, err := matrix.ExportJSON(m.Platform, "Platform", feedNames, now)
	if err != nil {
		return err
	}
	if err := state.WriteFileAtomic(cfg.Paths.PlatformJSONFile, platformJSON); err != nil {
		return fmt.Errorf("write platform export: %w", err)
	}
	return nil
}

func sourceNames(cfg *config.Config) []string {
	var names []string
	for _, src := range cfg.Sources.Repos {
		names = append(names, src.Name)
	}
	for _, src := range cfg.Sources.Feeds {
		names = append(names, src.Name)
	}
	return names
}

// recordStatuses persists the applied statuses so future runs can flag
// proposed downgrades before review.
func recordStatuses(cfg *config.Config, drafts []types.DraftRecord, result *matrix.ApplyResult) error {
	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close() //nolint:errcheck // write path checks errors below

	rejected := make(map[string]bool, len(result.Rejections))
	for _, r := range result.Rejections {
		rejected[r.Record.FeatureCapability+"\n"+string(r.Table)] = true
	}

	for _, d := range drafts {
		for _, table := range d.Tables {
			if rejected[d.Record.FeatureCapability+"\n"+string(table)] {
				continue
			}
			if err := store.RecordStatus(d.Record.FeatureCapability, table, d.Record.CurrentStatus); err != nil {
				return fmt.Errorf("record status for %q: %w", d.Record.FeatureCapability, err)
			}
		}
	}
	return nil
}

func runMatrixCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	_, m, err := loadMatrixDoc(cfg)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	fmt.Printf("OK: %d IDE row(s), %d platform row(s).\n", len(m.IDE), len(m.Platform))
	return nil
}

func runMatrixRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	content, m, err := loadMatrixDoc(cfg)
	if err != nil {
		return err
	}
	if content == "" {
		return fmt.Errorf("no matrix document at %s", cfg.Paths.MatrixFile)
	}

	if err := writeMatrixOutputs(cfg, content, m); err != nil {
		return err
	}
	fmt.Printf("Wrote %s and %s\n", cfg.Paths.IDEJSONFile, cfg.Paths.PlatformJSONFile)
	return nil
}
