// Package types defines the shared domain types for the featwatch pipeline:
// normalized source items, draft and approved feature records, and the
// status lifecycle used by the feature matrix.
package types

import "time"

// Table identifies which canonical feature table a record belongs to.
type Table string

const (
	// TableIDE is the IDE features table (editor-facing capabilities).
	TableIDE Table = "ide"

	// TablePlatform is the Platform features table (service-level capabilities).
	TablePlatform Table = "platform"
)

// Status is the lifecycle status of a tracked feature.
type Status string

const (
	StatusStable       Status = "Stable"
	StatusPreview      Status = "Preview"
	StatusExperimental Status = "Experimental"
	StatusRollingOut   Status = "Rolling Out"
	StatusDeprecated   Status = "Deprecated"
	StatusUnknown      Status = "Unknown"
)

// statusForward lists the allowed forward moves per status. Experimental
// and Rolling Out are separate entry tracks that converge on Stable; a
// feature never moves sideways between tracks.
var statusForward = map[Status][]Status{
	StatusExperimental: {StatusPreview, StatusStable},
	StatusPreview:      {StatusStable},
	StatusRollingOut:   {StatusStable},
	StatusStable:       {},
}

// ParseStatus maps literal status text onto a Status, defaulting to
// StatusUnknown for unrecognized input.
func ParseStatus(s string) Status {
	switch s {
	case string(StatusStable):
		return StatusStable
	case string(StatusPreview):
		return StatusPreview
	case string(StatusExperimental):
		return StatusExperimental
	case string(StatusRollingOut):
		return StatusRollingOut
	case string(StatusDeprecated):
		return StatusDeprecated
	default:
		return StatusUnknown
	}
}

// Emoji returns the human-readable table marker for a status. The JSON
// outputs use the literal status words instead.
func (s Status) Emoji() string {
	switch s {
	case StatusStable:
		return "🟢 Stable"
	case StatusPreview:
		return "🟡 Preview"
	case StatusExperimental:
		return "🟠 Experimental"
	case StatusRollingOut:
		return "🔵 Rolling Out"
	case StatusDeprecated:
		return "🔴 Deprecated"
	default:
		return "Unknown"
	}
}

// CanTransition reports whether moving from s to next respects the one-way
// lifecycle. Deprecated is reachable from any state and terminal; Unknown
// may move to anything. Backward and cross-track moves are rejected.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if next == StatusDeprecated {
		return true
	}
	if s == StatusDeprecated {
		return false
	}
	if next == StatusUnknown {
		return false
	}
	if s == StatusUnknown {
		return true
	}
	for _, allowed := range statusForward[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// SourceKind distinguishes monitored source types.
type SourceKind string

const (
	// SourceKindRepo is a monitored GitHub repository (release notes).
	SourceKindRepo SourceKind = "repo"

	// SourceKindFeed is a monitored RSS/Atom feed.
	SourceKindFeed SourceKind = "feed"
)

// Item is a normalized unit of new content from any source, ready for
// cleaning and classification.
type Item struct {
	// Source names the originating source (feed name or owner/repo).
	Source string `json:"source"`

	// Kind is the source type the item came from.
	Kind SourceKind `json:"kind"`

	// Title is the item or release title.
	Title string `json:"title"`

	// Link is the canonical URL for the item.
	Link string `json:"link"`

	// PublishedAt is the item publication time (zero if unknown).
	PublishedAt time.Time `json:"published_at,omitempty"`

	// RawContent is the unprocessed HTML or markdown body.
	RawContent string `json:"raw_content,omitempty"`
}

// Key returns the dedup key for an item: normalized {title, link}. Two
// items with the same key across runs are the same item.
func (i Item) Key() string {
	return i.Title + "\n" + i.Link
}

// SourceLink attributes a feature record back to the content it came from.
type SourceLink struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	FeedSource string `json:"feedSource,omitempty"`
}

// FeatureRecord is one row of structured metadata describing a single
// tracked capability. It is the unit proposed by the pipeline and, after
// review, applied to the feature matrix.
type FeatureRecord struct {
	// FeatureCapability is the feature name; dedup key within a table.
	FeatureCapability string `json:"featureCapability"`

	// Category is free-form, conventionally "Area / Subarea".
	Category string `json:"category,omitempty"`

	// FirstIntroduced is a version or date string, or "Unknown".
	FirstIntroduced string `json:"firstIntroduced,omitempty"`

	// CurrentStatus is the lifecycle status.
	CurrentStatus Status `json:"currentStatus"`

	// LatestUpdate is a version or date string, or "Unknown".
	LatestUpdate string `json:"latestUpdate,omitempty"`

	// KeyMilestones is free text; carries cross-reference notes for
	// features listed in both tables.
	KeyMilestones string `json:"keyMilestones,omitempty"`

	// SourceLinks attribute the record to its sources, in order.
	SourceLinks []SourceLink `json:"sourceLinks,omitempty"`

	// DetectionDate is when the pipeline first saw this feature.
	DetectionDate time.Time `json:"detectionDate,omitempty"`

	// LastModified is when the record last changed.
	LastModified time.Time `json:"lastModified,omitempty"`
}

// DraftRecord is a FeatureRecord proposed by the summarizer, not yet
// reviewed. It carries routing and review context alongside the row.
type DraftRecord struct {
	Record FeatureRecord `json:"record"`

	// Tables lists the destination tables; two entries when the feature
	// spans IDE and Platform (cross-listed with a note).
	Tables []Table `json:"tables"`

	// Summary is the model-produced TL;DR for the review issue.
	Summary string `json:"summary,omitempty"`

	// LifecycleFlag marks content that matched a lifecycle keyword and
	// needs status-downgrade review.
	LifecycleFlag bool `json:"lifecycle_flag,omitempty"`

	// StatusDowngrade marks a proposed status that moves backward from
	// the last recorded status for the capability. The lifecycle is
	// one-way, so a reviewer has to confirm before it lands.
	StatusDowngrade bool `json:"status_downgrade,omitempty"`

	// Item is the source item the draft came from.
	Item Item `json:"item"`
}

// SourceResult reports the per-source outcome of one pipeline run.
type SourceResult struct {
	// Source names the source.
	Source string `json:"source"`

	// Kind is the source type.
	Kind SourceKind `json:"kind"`

	// Fetched counts new items emitted since the marker.
	Fetched int `json:"fetched"`

	// Skipped counts malformed or already-seen entries.
	Skipped int `json:"skipped"`

	// Err holds the fetch error when the source failed entirely.
	Err string `json:"error,omitempty"`
}

// RunReport summarizes one pipeline run for the audit trail.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Sources holds per-source outcomes.
	Sources []SourceResult `json:"sources,omitempty"`

	// Drafts counts summarized draft records.
	Drafts int `json:"drafts"`

	// ManualReview counts items the summarizer could not turn into a
	// record; they are surfaced in the issue rather than dropped.
	ManualReview int `json:"manual_review"`

	// IssueURL is the created review issue, when one was filed.
	IssueURL string `json:"issue_url,omitempty"`
}
