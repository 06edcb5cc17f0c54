// Package issue renders the monthly review issue from the configured
// action-items template and files it against the tracking repository.
// There is deliberately no built-in template: a missing template is a fatal
// configuration error, never silently substituted text.
package issue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/types"
)

// ErrNoTemplate is returned when neither the template variable nor the
// template file is configured.
var ErrNoTemplate = errors.New("no action-items template configured: set " +
	config.TemplateEnvVar + " or provide the template file")

// ResolveTemplate returns the issue body template, checking the environment
// variable first and the configured file second.
func ResolveTemplate(templateFile string) (string, error) {
	if body := strings.TrimSpace(os.Getenv(config.TemplateEnvVar)); body != "" {
		return body, nil
	}
	if templateFile != "" {
		data, err := os.ReadFile(templateFile)
		if err == nil && strings.TrimSpace(string(data)) != "" {
			return string(data), nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("read template file %s: %w", templateFile, err)
		}
	}
	return "", ErrNoTemplate
}

// templateData is what the action-items template can reference.
type templateData struct {
	RunID        string
	Date         string
	Drafts       []types.DraftRecord
	ManualReview []types.Item
	ActionItems  string
	ActionsJSON  string
}

// Render executes the template against the run's drafts. ActionItems is the
// pre-rendered markdown table and ActionsJSON the machine-readable list, so
// templates can embed either without reimplementing the schema.
func Render(tmplBody string, report *types.RunReport, drafts []types.DraftRecord, manual []types.Item) (string, error) {
	tmpl, err := template.New("action_items").Parse(tmplBody)
	if err != nil {
		return "", fmt.Errorf("parse action-items template: %w", err)
	}

	actionsJSON, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal action items: %w", err)
	}

	data := templateData{
		RunID:        report.RunID,
		Date:         report.StartedAt.UTC().Format("2006-01-02"),
		Drafts:       drafts,
		ManualReview: manual,
		ActionItems:  renderActionTable(drafts),
		ActionsJSON:  string(actionsJSON),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute action-items template: %w", err)
	}

	body := buf.String()
	if len(manual) > 0 && !strings.Contains(body, manualReviewHeading) {
		body += renderManualReview(manual)
	}
	return body, nil
}

const manualReviewHeading = "## Needs manual review"

// renderActionTable produces the action-item markdown table.
func renderActionTable(drafts []types.DraftRecord) string {
	var b strings.Builder
	b.WriteString("| Feature/Capability | Table(s) | Status | TL;DR | Source |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, d := range drafts {
		tables := make([]string, len(d.Tables))
		for i, t := range d.Tables {
			tables[i] = string(t)
		}
		source := ""
		if len(d.Record.SourceLinks) > 0 {
			l := d.Record.SourceLinks[0]
			source = fmt.Sprintf("[%s](%s)", escapeCell(orLink(l.Title, l.URL)), l.URL)
		}
		status := d.Record.CurrentStatus.Emoji()
		if d.LifecycleFlag {
			status += " ⚠️ lifecycle review"
		}
		if d.StatusDowngrade {
			status += " ⚠️ status downgrade"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			escapeCell(d.Record.FeatureCapability),
			strings.Join(tables, ", "),
			status,
			escapeCell(d.Summary),
			source)
	}
	return b.String()
}

// renderManualReview lists items the summarizer could not process; they are
// surfaced here rather than silently discarded.
func renderManualReview(items []types.Item) string {
	var b strings.Builder
	b.WriteString("\n\n" + manualReviewHeading + "\n\n")
	b.WriteString("The summarizer could not produce a record for these items:\n\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- [%s](%s) — %s", escapeCell(it.Title), it.Link, it.Source)
		if !it.PublishedAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", it.PublishedAt.UTC().Format(time.DateOnly))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// escapeCell keeps pipes and newlines out of markdown table cells.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func orLink(title, url string) string {
	if title != "" {
		return title
	}
	return url
}
