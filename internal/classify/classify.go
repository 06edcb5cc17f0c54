// Package classify routes cleaned content to the IDE table, the Platform
// table, or both, using a fixed keyword heuristic. Classification is
// deterministic and happens before summarization so routing never depends
// on model output.
package classify

import (
	"regexp"

	"github.com/boshu2/featwatch/internal/types"
)

// CrossListing policies for content carrying both IDE and Platform signals.
const (
	// PolicyBoth lists ambiguous content in both tables with a
	// cross-reference note (default).
	PolicyBoth = "both"

	// PolicyPrimary lists ambiguous content only in the stronger-signal table.
	PolicyPrimary = "primary"
)

// ideKeywords route content to the IDE table: editor names plus
// editor-facing capability terms.
var ideKeywords = []string{
	"vs code", "vscode", "visual studio", "jetbrains", "intellij",
	"pycharm", "eclipse", "xcode", "neovim", "vim",
	"ide", "extension", "lsp", "mcp",
	"completion", "completions", "autocomplete", "inline suggestion",
	"chat", "debugging", "debugger", "code review", "refactoring",
}

// platformKeywords route content to the Platform table: service-level terms.
var platformKeywords = []string{
	"api", "rest api", "enterprise", "organization", "admin",
	"model", "gpt", "claude", "gemini", "fine-tuned",
	"security", "compliance", "audit log", "data residency",
	"sso", "saml", "policy", "rate limit", "agent platform",
}

// platformExclusions keep non-product content out of the Platform table
// regardless of other signals: events, education, billing, marketing.
var platformExclusions = map[string][]string{
	"event announcement":        {"conference", "summit", "webinar", "keynote", "livestream", "meetup"},
	"educational content":       {"tutorial", "how to", "course", "workshop", "certification", "learning path"},
	"billing or licensing":      {"pricing", "billing", "invoice", "subscription plan", "license change"},
	"marketing or company news": {"acquisition", "partnership", "award", "anniversary", "press release"},
}

var (
	idePatterns       = compile(ideKeywords)
	platformPatterns  = compile(platformKeywords)
	exclusionPatterns = compileExclusions()
)

func compile(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return patterns
}

func compileExclusions() map[string][]*regexp.Regexp {
	out := make(map[string][]*regexp.Regexp, len(platformExclusions))
	for reason, kws := range platformExclusions {
		out[reason] = compile(kws)
	}
	return out
}

// Routing is the classification outcome for one content chunk.
type Routing struct {
	// Tables lists destination tables; empty means no table matched and
	// the item needs manual review.
	Tables []types.Table `json:"tables,omitempty"`

	// CrossListed is set when the content carried both signal kinds and
	// policy routed it to both tables.
	CrossListed bool `json:"cross_listed,omitempty"`

	// ExcludedFromPlatform is set when an exclusion rule suppressed the
	// Platform routing; ExclusionReason names the rule.
	ExcludedFromPlatform bool   `json:"excluded_from_platform,omitempty"`
	ExclusionReason      string `json:"exclusion_reason,omitempty"`

	// IDEHits and PlatformHits count matched keywords per side.
	IDEHits      int `json:"ide_hits,omitempty"`
	PlatformHits int `json:"platform_hits,omitempty"`
}

// Classify routes text under the given cross-listing policy ("both" or
// "primary"; anything else is treated as "both").
func Classify(text, policy string) Routing {
	r := Routing{
		IDEHits:      countHits(text, idePatterns),
		PlatformHits: countHits(text, platformPatterns),
	}

	// Exclusions block the Platform table regardless of other signals.
	// The order of checks is fixed so the reported reason is stable.
	for _, reason := range []string{
		"event announcement",
		"educational content",
		"billing or licensing",
		"marketing or company news",
	} {
		if matchesAny(text, exclusionPatterns[reason]) {
			r.ExcludedFromPlatform = true
			r.ExclusionReason = reason
			r.PlatformHits = 0
			break
		}
	}

	switch {
	case r.IDEHits > 0 && r.PlatformHits > 0:
		if policy == PolicyPrimary {
			if r.PlatformHits > r.IDEHits {
				r.Tables = []types.Table{types.TablePlatform}
			} else {
				r.Tables = []types.Table{types.TableIDE}
			}
		} else {
			r.Tables = []types.Table{types.TableIDE, types.TablePlatform}
			r.CrossListed = true
		}
	case r.IDEHits > 0:
		r.Tables = []types.Table{types.TableIDE}
	case r.PlatformHits > 0:
		r.Tables = []types.Table{types.TablePlatform}
	}

	return r
}

func countHits(text string, patterns []*regexp.Regexp) int {
	hits := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			hits++
		}
	}
	return hits
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
