package matrix

import (
	"errors"
	"testing"
	"time"

	"github.com/boshu2/featwatch/internal/types"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func draft(name string, status types.Status, update string, tables ...types.Table) types.DraftRecord {
	return types.DraftRecord{
		Record: types.FeatureRecord{
			FeatureCapability: name,
			Category:          "AI Assistance",
			FirstIntroduced:   "2025-01",
			CurrentStatus:     status,
			LatestUpdate:      update,
		},
		Tables: tables,
	}
}

func TestApplyInsertsNewRows(t *testing.T) {
	m := &Matrix{}
	result := m.Apply([]types.DraftRecord{
		draft("Agent Mode", types.StatusPreview, "2026-07-10", types.TableIDE),
		draft("Coding Agent", types.StatusStable, "2026-07-20", types.TablePlatform),
	}, testNow)

	if len(result.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", result.Rejections)
	}
	if result.Applied != 2 {
		t.Fatalf("Applied = %d, want 2", result.Applied)
	}
	if len(m.IDE) != 1 || len(m.Platform) != 1 {
		t.Fatalf("tables = %d/%d rows, want 1/1", len(m.IDE), len(m.Platform))
	}
	if m.IDE[0].DetectionDate != testNow || m.IDE[0].LastModified != testNow {
		t.Errorf("new row should stamp detection and modification times")
	}
}

func TestApplyDeduplicatesByCapability(t *testing.T) {
	m := &Matrix{}
	m.Apply([]types.DraftRecord{draft("Agent Mode", types.StatusPreview, "2026-06", types.TableIDE)}, testNow)

	later := testNow.Add(24 * time.Hour)
	result := m.Apply([]types.DraftRecord{draft("agent mode", types.StatusStable, "2026-07", types.TableIDE)}, later)

	if len(result.Rejections) != 0 {
		t.Fatalf("unexpected rejections: %+v", result.Rejections)
	}
	if len(m.IDE) != 1 {
		t.Fatalf("case-insensitive duplicate created a second row: %d rows", len(m.IDE))
	}
	row := m.IDE[0]
	if row.CurrentStatus != types.StatusStable {
		t.Errorf("CurrentStatus = %q, want Stable", row.CurrentStatus)
	}
	if row.LatestUpdate != "2026-07" {
		t.Errorf("LatestUpdate = %q, want merged value", row.LatestUpdate)
	}
	if row.FeatureCapability != "Agent Mode" {
		t.Errorf("merge should keep the existing capability spelling, got %q", row.FeatureCapability)
	}
}

func TestApplyRejectsBackwardTransition(t *testing.T) {
	m := &Matrix{}
	m.Apply([]types.DraftRecord{draft("Next Edit Suggestions", types.StatusStable, "2026-06", types.TableIDE)}, testNow)

	result := m.Apply([]types.DraftRecord{draft("Next Edit Suggestions", types.StatusPreview, "2026-07", types.TableIDE)}, testNow)

	if result.Applied != 0 || len(result.Rejections) != 1 {
		t.Fatalf("Applied = %d, Rejections = %d, want 0/1", result.Applied, len(result.Rejections))
	}
	if m.IDE[0].CurrentStatus != types.StatusStable {
		t.Errorf("rejected record must not mutate the row, status = %q", m.IDE[0].CurrentStatus)
	}
}

func TestApplyDeprecatedIsTerminal(t *testing.T) {
	m := &Matrix{}
	m.Apply([]types.DraftRecord{draft("Old Chat", types.StatusDeprecated, "2026-01", types.TablePlatform)}, testNow)

	result := m.Apply([]types.DraftRecord{draft("Old Chat", types.StatusStable, "2026-07", types.TablePlatform)}, testNow)
	if len(result.Rejections) != 1 {
		t.Fatalf("deprecated row accepted a revival without the reintroduced marker")
	}

	revived := draft("Old Chat", types.StatusStable, "2026-07", types.TablePlatform)
	revived.Record.KeyMilestones = "Reintroduced after redesign"
	result = m.Apply([]types.DraftRecord{revived}, testNow)
	if len(result.Rejections) != 0 {
		t.Fatalf("reintroduced marker should authorize the transition: %+v", result.Rejections)
	}
	if m.Platform[0].CurrentStatus != types.StatusStable {
		t.Errorf("status = %q after reintroduction, want Stable", m.Platform[0].CurrentStatus)
	}
}

func TestApplyMergesSourceLinks(t *testing.T) {
	first := draft("Code Review", types.StatusPreview, "2026-06", types.TablePlatform)
	first.Record.SourceLinks = []types.SourceLink{{Title: "Changelog", URL: "https://example.com/a"}}

	second := draft("Code Review", types.StatusStable, "2026-07", types.TablePlatform)
	second.Record.SourceLinks = []types.SourceLink{
		{Title: "Changelog", URL: "https://example.com/a"},
		{Title: "Docs", URL: "https://example.com/b"},
	}

	m := &Matrix{}
	m.Apply([]types.DraftRecord{first}, testNow)
	m.Apply([]types.DraftRecord{second}, testNow)

	links := m.Platform[0].SourceLinks
	if len(links) != 2 {
		t.Fatalf("links = %d, want 2 after dedup by URL", len(links))
	}
	if links[0].URL != "https://example.com/a" || links[1].URL != "https://example.com/b" {
		t.Errorf("link order not preserved: %+v", links)
	}
}

func TestApplyRejectsEmptyCapability(t *testing.T) {
	m := &Matrix{}
	result := m.Apply([]types.DraftRecord{draft("", types.StatusStable, "2026-07", types.TableIDE)}, testNow)
	if len(result.Rejections) != 1 {
		t.Fatalf("empty capability should be rejected")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	d := draft("MCP Support", types.StatusStable, "2026-07", types.TableIDE, types.TablePlatform)
	d.Record.SourceLinks = []types.SourceLink{{Title: "Release", URL: "https://example.com/r"}}

	m := &Matrix{}
	m.Apply([]types.DraftRecord{d}, testNow)
	m.Apply([]types.DraftRecord{d}, testNow)

	if len(m.IDE) != 1 || len(m.Platform) != 1 {
		t.Fatalf("replay grew the tables: %d/%d", len(m.IDE), len(m.Platform))
	}
	if len(m.IDE[0].SourceLinks) != 1 {
		t.Errorf("replay duplicated source links: %d", len(m.IDE[0].SourceLinks))
	}
}

func TestValidateDetectsDuplicates(t *testing.T) {
	m := &Matrix{IDE: []types.FeatureRecord{
		{FeatureCapability: "Agent Mode", CurrentStatus: types.StatusStable},
		{FeatureCapability: "agent mode", CurrentStatus: types.StatusPreview},
	}}
	if err := m.Validate(); !errors.Is(err, ErrDuplicateRow) {
		t.Fatalf("Validate() = %v, want ErrDuplicateRow", err)
	}
}
