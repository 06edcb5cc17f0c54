package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boshu2/featwatch/internal/config"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Copilot Changelog</title>
  <link>https://example.com</link>
  <item>
    <title>Agent mode generally available</title>
    <link>https://example.com/agent-mode</link>
    <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
    <description>&lt;p&gt;Agent mode is now GA in the editor.&lt;/p&gt;</description>
  </item>
  <item>
    <title>Old completions API deprecated</title>
    <link>https://example.com/deprecation</link>
    <pubDate>Thu, 01 May 2025 09:00:00 GMT</pubDate>
    <description>The old completions API is deprecated.</description>
  </item>
  <item>
    <title></title>
    <link></link>
    <description>malformed entry with no identity</description>
  </item>
</channel>
</rss>`

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchNormalizesItems(t *testing.T) {
	srv := serveFeed(t, sampleRSS)
	p := NewProcessor(nil)

	res, err := p.Fetch(context.Background(), config.FeedSource{Name: "changelog", URL: srv.URL}, "")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Skipped != 1 {
		t.Errorf("expected 1 skipped malformed entry, got %d", res.Skipped)
	}

	first := res.Items[0]
	if first.Title != "Agent mode generally available" {
		t.Errorf("unexpected title: %s", first.Title)
	}
	if first.Link != "https://example.com/agent-mode" {
		t.Errorf("unexpected link: %s", first.Link)
	}
	if first.Source != "changelog" {
		t.Errorf("unexpected source: %s", first.Source)
	}
	if first.PublishedAt.IsZero() {
		t.Error("expected parsed publication time")
	}
	if first.RawContent == "" {
		t.Error("expected raw content")
	}
}

func TestFetchRespectsMarker(t *testing.T) {
	srv := serveFeed(t, sampleRSS)
	p := NewProcessor(nil)
	src := config.FeedSource{Name: "changelog", URL: srv.URL}

	// First fetch advances the marker to the newest item.
	res, err := p.Fetch(context.Background(), src, "")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	wantMarker := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if res.Marker != wantMarker {
		t.Errorf("expected marker %s, got %s", wantMarker, res.Marker)
	}

	// Second fetch with the advanced marker emits nothing.
	res, err = p.Fetch(context.Background(), src, res.Marker)
	if err != nil {
		t.Fatalf("Fetch with marker failed: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("expected no items past marker, got %d", len(res.Items))
	}
	if res.Marker != wantMarker {
		t.Errorf("marker should not move without new items, got %s", res.Marker)
	}
}

func TestFetchPartialMarker(t *testing.T) {
	srv := serveFeed(t, sampleRSS)
	p := NewProcessor(nil)
	src := config.FeedSource{Name: "changelog", URL: srv.URL}

	// Marker between the two items: only the newer one is emitted.
	marker := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	res, err := p.Fetch(context.Background(), src, marker)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Link != "https://example.com/agent-mode" {
		t.Errorf("expected only the newer item, got %+v", res.Items)
	}
}

func TestFetchBadFeedFails(t *testing.T) {
	srv := serveFeed(t, "this is not xml at all {")
	p := NewProcessor(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := p.Fetch(ctx, config.FeedSource{Name: "broken", URL: srv.URL}, ""); err == nil {
		t.Error("expected error for unparseable feed")
	}
}
