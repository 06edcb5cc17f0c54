package issue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/types"
)

func testReport() *types.RunReport {
	return &types.RunReport{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
}

func testDrafts() []types.DraftRecord {
	return []types.DraftRecord{
		{
			Record: types.FeatureRecord{
				FeatureCapability: "Agent mode",
				CurrentStatus:     types.StatusStable,
				SourceLinks: []types.SourceLink{
					{URL: "https://example.com/agent", Title: "Agent mode GA", FeedSource: "changelog"},
				},
			},
			Tables:  []types.Table{types.TableIDE},
			Summary: "Agent mode is GA.",
		},
		{
			Record: types.FeatureRecord{
				FeatureCapability: "Legacy API",
				CurrentStatus:     types.StatusDeprecated,
			},
			Tables:        []types.Table{types.TablePlatform},
			LifecycleFlag: true,
		},
		{
			Record: types.FeatureRecord{
				FeatureCapability: "Code review",
				CurrentStatus:     types.StatusPreview,
			},
			Tables:          []types.Table{types.TableIDE},
			StatusDowngrade: true,
		},
	}
}

func TestResolveTemplateMissingBothIsFatal(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "")

	// Empty templates dir: neither env var nor file present.
	dir := t.TempDir()
	if _, err := ResolveTemplate(filepath.Join(dir, "copilot_action_items.md")); !errors.Is(err, ErrNoTemplate) {
		t.Errorf("expected ErrNoTemplate, got %v", err)
	}
}

func TestResolveTemplateEnvWins(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "from env: {{ .Date }}")

	dir := t.TempDir()
	path := filepath.Join(dir, "tmpl.md")
	if err := os.WriteFile(path, []byte("from file"), 0600); err != nil {
		t.Fatal(err)
	}

	body, err := ResolveTemplate(path)
	if err != nil {
		t.Fatalf("ResolveTemplate failed: %v", err)
	}
	if body != "from env: {{ .Date }}" {
		t.Errorf("env template should win, got %q", body)
	}
}

func TestResolveTemplateFile(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "tmpl.md")
	if err := os.WriteFile(path, []byte("file body {{ .ActionItems }}"), 0600); err != nil {
		t.Fatal(err)
	}

	body, err := ResolveTemplate(path)
	if err != nil {
		t.Fatalf("ResolveTemplate failed: %v", err)
	}
	if !strings.Contains(body, "file body") {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestRenderActionTable(t *testing.T) {
	tmpl := "# Updates for {{ .Date }}\n\n{{ .ActionItems }}"

	body, err := Render(tmpl, testReport(), testDrafts(), nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(body, "# Updates for 2025-06-02") {
		t.Errorf("date not rendered:\n%s", body)
	}
	if !strings.Contains(body, "| Agent mode | ide | 🟢 Stable | Agent mode is GA. |") {
		t.Errorf("action row missing:\n%s", body)
	}
	if !strings.Contains(body, "⚠️ lifecycle review") {
		t.Errorf("lifecycle flag missing:\n%s", body)
	}
	if !strings.Contains(body, "⚠️ status downgrade") {
		t.Errorf("downgrade flag missing:\n%s", body)
	}
}

func TestRenderAppendsManualReview(t *testing.T) {
	manual := []types.Item{
		{Source: "blog", Title: "Odd post", Link: "https://example.com/odd"},
	}

	body, err := Render("{{ .ActionItems }}", testReport(), testDrafts(), manual)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(body, "## Needs manual review") {
		t.Errorf("manual review section missing:\n%s", body)
	}
	if !strings.Contains(body, "https://example.com/odd") {
		t.Errorf("manual review item missing:\n%s", body)
	}
}

type stubIssues struct {
	lastReq *github.IssueRequest
	err     error
}

func (s *stubIssues) Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error) {
	s.lastReq = issue
	if s.err != nil {
		return nil, nil, s.err
	}
	return &github.Issue{HTMLURL: github.String("https://github.com/" + owner + "/" + repo + "/issues/1")}, nil, nil
}

func TestCreateFailsFastWithoutTemplate(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "")

	stub := &stubIssues{}
	c := NewCreatorWithService(stub, config.IssueConfig{
		Repo:         "acme/tracker",
		TemplateFile: filepath.Join(t.TempDir(), "missing.md"),
	}, true, nil)

	_, err := c.Create(context.Background(), testReport(), testDrafts(), nil)
	if !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", err)
	}
	if stub.lastReq != nil {
		t.Error("no issue must be created when the template is missing")
	}
}

func TestCreateAssignsWithToken(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "{{ .ActionItems }}")

	stub := &stubIssues{}
	c := NewCreatorWithService(stub, config.IssueConfig{
		Repo:     "acme/tracker",
		Assignee: "matrix-bot",
	}, true, nil)

	url, err := c.Create(context.Background(), testReport(), testDrafts(), nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if url == "" {
		t.Error("expected issue URL")
	}
	if stub.lastReq.Assignees == nil || (*stub.lastReq.Assignees)[0] != "matrix-bot" {
		t.Errorf("expected assignee, got %+v", stub.lastReq.Assignees)
	}
}

func TestCreateDegradesToUnassignedWithoutToken(t *testing.T) {
	t.Setenv(config.TemplateEnvVar, "{{ .ActionItems }}")

	stub := &stubIssues{}
	c := NewCreatorWithService(stub, config.IssueConfig{
		Repo:     "acme/tracker",
		Assignee: "matrix-bot",
	}, false, nil)

	if _, err := c.Create(context.Background(), testReport(), testDrafts(), nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stub.lastReq.Assignees != nil {
		t.Errorf("expected unassigned issue, got %+v", stub.lastReq.Assignees)
	}
}
