package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/sashabaranov/go-openai"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/feed"
	"github.com/boshu2/featwatch/internal/issue"
	"github.com/boshu2/featwatch/internal/scanner"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/summarize"
	"github.com/boshu2/featwatch/internal/types"
)

// agentItemKey is the dedup key of the agent-mode item in testRSS.
var agentItemKey = types.Item{
	Title: "Agent mode generally available in VS Code",
	Link:  "https://example.com/agent-mode",
}.Key()

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Copilot Changelog</title>
  <link>https://example.com</link>
  <item>
    <title>Agent mode generally available in VS Code</title>
    <link>https://example.com/agent-mode</link>
    <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
    <description>Agent mode is now GA in the VS Code extension.</description>
  </item>
  <item>
    <title>Quarterly community newsletter</title>
    <link>https://example.com/newsletter</link>
    <pubDate>Sun, 01 Jun 2025 09:00:00 GMT</pubDate>
    <description>Community highlights with no product signal.</description>
  </item>
</channel>
</rss>`

const goodDraft = `{
  "feature_capability": "Agent Mode",
  "category": "AI Assistance",
  "first_introduced": "2025-02",
  "current_status": "Stable",
  "latest_update": "2025-06",
  "key_milestones": "GA in June 2025",
  "summary": "Agent mode is now generally available."
}`

// previewDraft proposes Preview for a capability; used to exercise the
// downgrade check against a previously recorded Stable.
const previewDraft = `{
  "feature_capability": "Agent Mode",
  "category": "AI Assistance",
  "first_introduced": "2025-02",
  "current_status": "Preview",
  "latest_update": "2025-06",
  "key_milestones": "Back in preview after a regression",
  "summary": "Agent mode is back in preview."
}`

type stubChat struct {
	content string
	err     error
	calls   int
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: s.content}}},
	}, nil
}

type stubIssues struct {
	lastReq *github.IssueRequest
	calls   int
}

func (s *stubIssues) Create(ctx context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, *github.Response, error) {
	s.calls++
	s.lastReq = req
	return &github.Issue{HTMLURL: github.String("https://github.com/o/r/issues/1")}, nil, nil
}

type stubLister struct {
	releases []*github.RepositoryRelease
	err      error
}

func (s *stubLister) ListReleases(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.releases, &github.Response{}, nil
}

// testPipeline wires a full pipeline against stubs and a temp data dir.
func testPipeline(t *testing.T, feedURL string, chat *stubChat, issues *stubIssues, lister *stubLister) (*Pipeline, *state.Store, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	tmpl := filepath.Join(dir, "template.md")
	if err := os.WriteFile(tmpl, []byte("# Updates {{.Date}}\n\n{{.ActionItems}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.BaseDir = dir
	cfg.Paths.ArtifactsDir = filepath.Join(dir, "artifacts")
	cfg.Paths.StateDB = filepath.Join(dir, "state.db")
	cfg.Issue.Repo = "o/r"
	cfg.Issue.TemplateFile = tmpl
	if feedURL != "" {
		cfg.Sources.Feeds = []config.FeedSource{{Name: "changelog", URL: feedURL}}
	}
	if lister != nil {
		cfg.Sources.Repos = []config.RepoSource{{Name: "VS Code", Repo: "microsoft/vscode"}}
	}

	store, err := state.Open(cfg.Paths.StateDB)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	var sc *scanner.Scanner
	if lister != nil {
		sc = scanner.NewWithLister(lister, nil)
	}
	p := NewWithComponents(cfg, store,
		sc,
		feed.NewProcessor(nil),
		summarize.NewWithClient(chat, "m", nil),
		issue.NewCreatorWithService(issues, cfg.Issue, false, nil),
		nil, Options{})
	return p, store, cfg
}

func serveRSS(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testRSS))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEndToEnd(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	p, store, _ := testPipeline(t, srv.URL, chat, issues, nil)

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.IssueURL != "https://github.com/o/r/issues/1" {
		t.Errorf("IssueURL = %q", out.IssueURL)
	}
	if len(out.Drafts) != 1 {
		t.Fatalf("drafts = %d, want 1 (only the agent-mode item has signal)", len(out.Drafts))
	}
	if out.Drafts[0].Record.FeatureCapability != "Agent Mode" {
		t.Errorf("draft = %+v", out.Drafts[0].Record)
	}
	if len(out.ManualReview) != 1 {
		t.Errorf("newsletter item should land in manual review, got %d", len(out.ManualReview))
	}
	if issues.calls != 1 {
		t.Errorf("issue created %d times, want 1", issues.calls)
	}

	marker, err := store.Marker("changelog")
	if err != nil || marker == "" {
		t.Errorf("marker should advance after a successful run, got %q (%v)", marker, err)
	}

	last, err := store.LastRun()
	if err != nil {
		t.Fatalf("LastRun: %v", err)
	}
	if last.Drafts != 1 || last.ManualReview != 1 {
		t.Errorf("persisted report = %+v", last)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	p, _, _ := testPipeline(t, srv.URL, chat, issues, nil)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(out.Drafts) != 0 || len(out.ManualReview) != 0 {
		t.Errorf("replay re-emitted items: %d drafts, %d manual", len(out.Drafts), len(out.ManualReview))
	}
	if chat.calls != 1 {
		t.Errorf("summarizer called %d times across both runs, want 1", chat.calls)
	}
	if issues.calls != 1 {
		t.Errorf("empty replay should not file an issue, got %d issues", issues.calls)
	}
}

func TestRunFailsFastWithoutTemplate(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	p, _, cfg := testPipeline(t, srv.URL, chat, issues, nil)
	cfg.Issue.TemplateFile = filepath.Join(t.TempDir(), "missing.md")

	_, err := p.Run(context.Background())
	if !errors.Is(err, issue.ErrNoTemplate) {
		t.Fatalf("Run = %v, want ErrNoTemplate", err)
	}
	if chat.calls != 0 {
		t.Errorf("summarizer ran despite missing template")
	}
	if issues.calls != 0 {
		t.Errorf("issue created despite missing template")
	}
}

func TestRunSourceFailureDoesNotAbort(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	lister := &stubLister{err: errors.New("upstream unavailable")}
	p, _, _ := testPipeline(t, srv.URL, chat, issues, lister)

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var failed, ok int
	for _, s := range out.Report.Sources {
		if s.Err != "" {
			failed++
		} else {
			ok++
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("sources = %d failed / %d ok, want 1/1: %+v", failed, ok, out.Report.Sources)
	}
	if len(out.Drafts) != 1 {
		t.Errorf("healthy source should still produce drafts, got %d", len(out.Drafts))
	}
}

func TestRunMaxItemsDefersWork(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	p, store, cfg := testPipeline(t, srv.URL, chat, issues, nil)
	cfg.Summarize.MaxItems = 1

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The deferred source keeps its old (empty) marker so the next run
	// re-fetches the remaining item.
	marker, err := store.Marker("changelog")
	if err != nil {
		t.Fatal(err)
	}
	if marker != "" {
		t.Errorf("marker advanced past deferred items: %q", marker)
	}

	// Only the processed item may be marked seen; the deferred item must
	// stay eligible or the re-fetch filters it straight back out.
	if seen, err := store.Seen(agentItemKey); err != nil || !seen {
		t.Errorf("processed item should be seen after the run (seen=%v, err=%v)", seen, err)
	}

	// With the cap lifted, the next run picks up exactly the deferred item.
	cfg.Summarize.MaxItems = 0
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if got := len(out.Drafts) + len(out.ManualReview); got != 1 {
		t.Errorf("second run should process the 1 deferred item, got %d drafts + %d manual",
			len(out.Drafts), len(out.ManualReview))
	}
}

func TestRunDryRunPersistsNothing(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	issues := &stubIssues{}
	p, store, cfg := testPipeline(t, srv.URL, chat, issues, nil)
	p.dryRun = true

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if issues.calls != 0 {
		t.Errorf("dry run created an issue")
	}
	if out.IssueURL != "" {
		t.Errorf("dry run reported an issue URL: %q", out.IssueURL)
	}
	if marker, _ := store.Marker("changelog"); marker != "" {
		t.Errorf("dry run advanced a marker: %q", marker)
	}
	if seen, _ := store.Seen(agentItemKey); seen {
		t.Errorf("dry run marked an item seen")
	}
	if _, err := store.LastRun(); !errors.Is(err, state.ErrNoRuns) {
		t.Errorf("dry run saved a report: %v", err)
	}
	if entries, err := os.ReadDir(cfg.Paths.ArtifactsDir); err == nil && len(entries) > 0 {
		t.Errorf("dry run wrote artifacts")
	}

	// A real run afterwards must still see everything the dry run saw.
	p.dryRun = false
	real, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("real run after dry run failed: %v", err)
	}
	if len(real.Drafts) != 1 || issues.calls != 1 {
		t.Errorf("dry run consumed items: real run got %d drafts, %d issues (want 1 and 1)",
			len(real.Drafts), issues.calls)
	}
}

func TestRunLockExcludesConcurrentRuns(t *testing.T) {
	srv := serveRSS(t)
	p, _, cfg := testPipeline(t, srv.URL, &stubChat{content: goodDraft}, &stubIssues{}, nil)

	lock, err := state.AcquireLock(cfg.BaseDir, staleLockAfter)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if _, err := p.Run(context.Background()); !errors.Is(err, state.ErrLocked) {
		t.Fatalf("Run = %v, want ErrLocked", err)
	}
}

func TestRunFlagsStatusDowngrade(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: previewDraft}
	issues := &stubIssues{}
	p, store, _ := testPipeline(t, srv.URL, chat, issues, nil)

	// A prior run recorded the capability as Stable; the lifecycle never
	// moves back to Preview without a human signing off.
	if err := store.RecordStatus("Agent Mode", types.TableIDE, types.StatusStable); err != nil {
		t.Fatal(err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(out.Drafts))
	}
	if !out.Drafts[0].StatusDowngrade {
		t.Fatal("Stable -> Preview should set the downgrade flag")
	}
	if issues.lastReq == nil || !strings.Contains(issues.lastReq.GetBody(), "status downgrade") {
		t.Fatal("issue body should call out the status downgrade")
	}
}

func TestRunAllowsForwardStatusChange(t *testing.T) {
	srv := serveRSS(t)
	chat := &stubChat{content: goodDraft}
	p, store, _ := testPipeline(t, srv.URL, chat, &stubIssues{}, nil)

	if err := store.RecordStatus("Agent Mode", types.TableIDE, types.StatusPreview); err != nil {
		t.Fatal(err)
	}

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(out.Drafts))
	}
	if out.Drafts[0].StatusDowngrade {
		t.Fatal("Preview -> Stable is forward; no downgrade flag expected")
	}
}
