package matrix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/boshu2/featwatch/internal/types"
)

// Section headings the canonical document uses. The updater replaces only
// the first table after each heading and preserves all other prose.
const (
	IDEHeading      = "## IDE Features"
	PlatformHeading = "## Platform Features"
)

// tableHeader is the canonical column set for both tables.
const tableHeader = "| Feature/Capability | Category | First Introduced | Current Status | Latest Update | Key Milestones | Sources |"

const tableSeparator = "|---|---|---|---|---|---|---|"

// linkPattern matches markdown links in a Sources cell.
var linkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// documentSkeleton is used when the canonical document does not exist yet.
const documentSkeleton = `# Copilot Feature Matrix

Tracking AI-assistant capabilities across IDEs and the platform. Generated
rows are proposed via review issues and applied after approval.

` + IDEHeading + `

` + PlatformHeading + `
`

// RenderTable renders a table's rows as markdown, statuses as emoji.
func RenderTable(rows []types.FeatureRecord) string {
	var b strings.Builder
	b.WriteString(tableHeader + "\n")
	b.WriteString(tableSeparator + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(r.FeatureCapability),
			cell(r.Category),
			cell(r.FirstIntroduced),
			r.CurrentStatus.Emoji(),
			cell(r.LatestUpdate),
			cell(r.KeyMilestones),
			renderSources(r.SourceLinks))
	}
	return b.String()
}

// renderSources joins attribution links with <br> so they stay in one cell.
func renderSources(links []types.SourceLink) string {
	parts := make([]string, 0, len(links))
	for _, l := range links {
		title := l.Title
		if title == "" {
			title = l.URL
		}
		parts = append(parts, fmt.Sprintf("[%s](%s)", cell(title), l.URL))
	}
	return strings.Join(parts, "<br>")
}

// cell escapes pipes and newlines for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// ParseDocument extracts both tables from the canonical document. A missing
// heading yields an empty table rather than an error, so a fresh document
// parses cleanly.
func ParseDocument(content string) *Matrix {
	return &Matrix{
		IDE:      parseTableAfter(content, IDEHeading),
		Platform: parseTableAfter(content, PlatformHeading),
	}
}

// parseTableAfter finds the first markdown table after a heading and maps
// its rows back to records.
func parseTableAfter(content, heading string) []types.FeatureRecord {
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == heading {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var rows []types.FeatureRecord
	inTable := false
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			break
		}
		if !strings.HasPrefix(trimmed, "|") {
			if inTable {
				break
			}
			continue
		}
		inTable = true
		if isHeaderOrSeparator(trimmed) {
			continue
		}
		if r, ok := parseRow(trimmed); ok {
			rows = append(rows, r)
		}
	}
	return rows
}

func isHeaderOrSeparator(line string) bool {
	return strings.Contains(line, "Feature/Capability") ||
		strings.Contains(strings.ReplaceAll(line, " ", ""), "|---")
}

// parseRow maps one table row back to a record.
func parseRow(line string) (types.FeatureRecord, bool) {
	cells := splitCells(line)
	if len(cells) < 7 || cells[0] == "" {
		return types.FeatureRecord{}, false
	}

	r := types.FeatureRecord{
		FeatureCapability: cells[0],
		Category:          cells[1],
		FirstIntroduced:   cells[2],
		CurrentStatus:     parseStatusCell(cells[3]),
		LatestUpdate:      cells[4],
		KeyMilestones:     cells[5],
	}
	for _, m := range linkPattern.FindAllStringSubmatch(cells[6], -1) {
		r.SourceLinks = append(r.SourceLinks, types.SourceLink{Title: m[1], URL: m[2]})
	}
	return r, true
}

// splitCells splits a table row on unescaped pipes.
func splitCells(line string) []string {
	line = strings.Trim(line, "|")
	// Protect escaped pipes through the split.
	const sentinel = "\x00"
	line = strings.ReplaceAll(line, "\\|", sentinel)
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(strings.ReplaceAll(p, sentinel, "|"))
	}
	return cells
}

// parseStatusCell recovers a status from its emoji-decorated cell.
func parseStatusCell(cellText string) types.Status {
	for _, s := range []types.Status{
		types.StatusRollingOut, // check multi-word first
		types.StatusStable,
		types.StatusPreview,
		types.StatusExperimental,
		types.StatusDeprecated,
	} {
		if strings.Contains(cellText, string(s)) {
			return s
		}
	}
	return types.StatusUnknown
}

// UpdateDocument replaces the two tables in the canonical document with the
// matrix's current rows, preserving all surrounding prose. An empty
// document gets the skeleton first.
func UpdateDocument(content string, m *Matrix) string {
	if strings.TrimSpace(content) == "" {
		content = documentSkeleton
	}

	content = replaceTableAfter(content, IDEHeading, RenderTable(m.IDE))
	content = replaceTableAfter(content, PlatformHeading, RenderTable(m.Platform))
	return content
}

// replaceTableAfter swaps the first table following a heading for the
// rendered one, or inserts a table when the heading has none yet.
func replaceTableAfter(content, heading, table string) string {
	lines := strings.Split(content, "\n")
	headingIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == heading {
			headingIdx = i
			break
		}
	}
	if headingIdx < 0 {
		// Heading missing entirely: append a new section.
		return strings.TrimRight(content, "\n") + "\n\n" + heading + "\n\n" + table
	}

	tableStart, tableEnd := -1, -1
	for i := headingIdx + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "## ") {
			break
		}
		if strings.HasPrefix(trimmed, "|") {
			if tableStart < 0 {
				tableStart = i
			}
			tableEnd = i
		} else if tableStart >= 0 {
			break
		}
	}

	tableLines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	var out []string
	if tableStart < 0 {
		// No table yet: insert right after the heading.
		out = append(out, lines[:headingIdx+1]...)
		out = append(out, "")
		out = append(out, tableLines...)
		out = append(out, lines[headingIdx+1:]...)
	} else {
		out = append(out, lines[:tableStart]...)
		out = append(out, tableLines...)
		out = append(out, lines[tableEnd+1:]...)
	}
	return strings.Join(out, "\n")
}
