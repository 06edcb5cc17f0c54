// Package cleaner strips markup from raw HTML or markdown content,
// extracts hyperlinks, and flags lifecycle keywords. Cleaning is
// deterministic: the same input always yields the same text and flags.
package cleaner

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Lifecycle keywords trigger status-downgrade review when they appear in
// content, regardless of which table the content routes to.
var lifecycleKeywords = []string{
	"deprecated",
	"sunset",
	"end of life",
	"eol",
	"discontinue",
	"retire",
}

var lifecyclePatterns = compileLifecyclePatterns()

func compileLifecyclePatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(lifecycleKeywords))
	for _, kw := range lifecycleKeywords {
		patterns[kw] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return patterns
}

// mdLink matches markdown links: [text](url).
var mdLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// mdMarkup matches markdown emphasis, code fences, and heading markers that
// should not survive into plain text.
var mdMarkup = regexp.MustCompile("(^|\\n)#{1,6} |[*_`]{1,3}")

// Link is a hyperlink extracted from content.
type Link struct {
	// URL is the link target.
	URL string `json:"url"`

	// Text is the anchor or markdown link text.
	Text string `json:"text,omitempty"`
}

// Result holds the cleaned form of one content chunk.
type Result struct {
	// Text is the plain-text content with markup stripped.
	Text string `json:"text"`

	// Links are the extracted hyperlinks, in document order.
	Links []Link `json:"links,omitempty"`

	// LifecycleFlags lists the lifecycle keywords found in the text,
	// in the fixed keyword-list order. Empty when none matched.
	LifecycleFlags []string `json:"lifecycle_flags,omitempty"`
}

// Flagged reports whether any lifecycle keyword matched.
func (r Result) Flagged() bool {
	return len(r.LifecycleFlags) > 0
}

// Clean strips markup from raw content. HTML is tokenized and reduced to
// text plus anchors; markdown links and emphasis are then removed from the
// remaining text.
func Clean(raw string) Result {
	text := raw
	var links []Link

	if strings.Contains(raw, "<") {
		text, links = stripHTML(raw)
	}

	// Markdown links: harvest targets, keep the anchor text.
	for _, m := range mdLink.FindAllStringSubmatch(text, -1) {
		links = append(links, Link{URL: m[2], Text: m[1]})
	}
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdMarkup.ReplaceAllString(text, "$1")
	text = collapseWhitespace(text)

	return Result{
		Text:           text,
		Links:          links,
		LifecycleFlags: detectLifecycle(text),
	}
}

// stripHTML reduces an HTML fragment to its text content and anchor links.
// Script and style bodies are dropped.
func stripHTML(raw string) (string, []Link) {
	var (
		text    strings.Builder
		links   []Link
		skip    int
		curHref string
		curText strings.Builder
	)

	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return text.String(), links

		case html.StartTagToken:
			tok := z.Token()
			switch tok.Data {
			case "script", "style":
				skip++
			case "a":
				for _, attr := range tok.Attr {
					if attr.Key == "href" {
						curHref = attr.Val
					}
				}
				curText.Reset()
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				text.WriteString("\n")
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.Data {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "a":
				if curHref != "" {
					links = append(links, Link{URL: curHref, Text: strings.TrimSpace(curText.String())})
				}
				curHref = ""
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := string(z.Text())
			text.WriteString(t)
			if curHref != "" {
				curText.WriteString(t)
			}
		}
	}
}

// collapseWhitespace normalizes runs of spaces and blank lines so cleaning
// is stable regardless of source formatting.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// detectLifecycle returns the lifecycle keywords present in text, preserving
// the fixed keyword-list order for deterministic output.
func detectLifecycle(text string) []string {
	var flags []string
	for _, kw := range lifecycleKeywords {
		if lifecyclePatterns[kw].MatchString(text) {
			flags = append(flags, kw)
		}
	}
	return flags
}
