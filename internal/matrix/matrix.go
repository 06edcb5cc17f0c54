// Package matrix maintains the canonical feature matrix: two tables of
// feature records with dedup, ordering, and lifecycle invariants, rendered
// as markdown for humans and JSON for machines. The pipeline proposes
// records; only reviewer-approved records flow through Apply.
package matrix

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boshu2/featwatch/internal/types"
)

// Sentinel errors for apply and validation failures.
var (
	// ErrDuplicateRow is returned when a table holds the same capability twice.
	ErrDuplicateRow = errors.New("duplicate featureCapability in table")

	// ErrOutOfOrder is returned when a table violates its ordering invariant.
	ErrOutOfOrder = errors.New("table rows out of order")
)

// reintroducedMarker is the note that authorizes an otherwise-backward
// status move (deprecate-then-reintroduce).
const reintroducedMarker = "reintroduced"

// Matrix holds both canonical tables.
type Matrix struct {
	IDE      []types.FeatureRecord
	Platform []types.FeatureRecord
}

// Table returns the rows for a table identifier.
func (m *Matrix) Table(t types.Table) []types.FeatureRecord {
	if t == types.TablePlatform {
		return m.Platform
	}
	return m.IDE
}

// setTable replaces the rows for a table identifier.
func (m *Matrix) setTable(t types.Table, rows []types.FeatureRecord) {
	if t == types.TablePlatform {
		m.Platform = rows
	} else {
		m.IDE = rows
	}
}

// Rejection explains why an approved record could not be applied.
type Rejection struct {
	Record types.FeatureRecord
	Table  types.Table
	Reason string
}

// ApplyResult reports the outcome of applying approved records.
type ApplyResult struct {
	// Applied counts rows inserted or updated across both tables.
	Applied int

	// Rejections lists records that violated an invariant.
	Rejections []Rejection
}

// Apply merges reviewer-approved drafts into the matrix, enforcing dedup
// and the one-way status lifecycle, then re-sorts both tables. Records that
// would move a status backward are rejected individually; the rest of the
// batch still applies.
func (m *Matrix) Apply(drafts []types.DraftRecord, now time.Time) *ApplyResult {
	result := &ApplyResult{}

	for _, draft := range drafts {
		for _, table := range draft.Tables {
			if err := m.applyOne(draft.Record, table, now); err != nil {
				result.Rejections = append(result.Rejections, Rejection{
					Record: draft.Record,
					Table:  table,
					Reason: err.Error(),
				})
				continue
			}
			result.Applied++
		}
	}

	m.Sort()
	return result
}

// applyOne inserts or updates a single row in a single table.
func (m *Matrix) applyOne(record types.FeatureRecord, table types.Table, now time.Time) error {
	if err := record.Validate(); err != nil {
		return err
	}

	rows := m.Table(table)
	idx := findRow(rows, record.FeatureCapability)
	if idx < 0 {
		record.LastModified = now
		if record.DetectionDate.IsZero() {
			record.DetectionDate = now
		}
		m.setTable(table, append(rows, record))
		return nil
	}

	existing := rows[idx]
	if !existing.CurrentStatus.CanTransition(record.CurrentStatus) &&
		!strings.Contains(strings.ToLower(record.KeyMilestones), reintroducedMarker) {
		return fmt.Errorf("%w: %s -> %s for %q",
			types.ErrBackwardTransition, existing.CurrentStatus, record.CurrentStatus, record.FeatureCapability)
	}

	merged := existing
	merged.CurrentStatus = record.CurrentStatus
	merged.LastModified = now
	if record.LatestUpdate != "" && record.LatestUpdate != "Unknown" {
		merged.LatestUpdate = record.LatestUpdate
	}
	if record.Category != "" {
		merged.Category = record.Category
	}
	if merged.FirstIntroduced == "" || merged.FirstIntroduced == "Unknown" {
		merged.FirstIntroduced = record.FirstIntroduced
	}
	if record.KeyMilestones != "" {
		merged.KeyMilestones = record.KeyMilestones
	}
	merged.SourceLinks = mergeLinks(existing.SourceLinks, record.SourceLinks)

	rows[idx] = merged
	m.setTable(table, rows)
	return nil
}

// findRow locates a capability in a table, case-insensitively.
func findRow(rows []types.FeatureRecord, capability string) int {
	for i, r := range rows {
		if strings.EqualFold(r.FeatureCapability, capability) {
			return i
		}
	}
	return -1
}

// mergeLinks appends new attribution links, deduplicating by URL and
// preserving the existing order.
func mergeLinks(existing, incoming []types.SourceLink) []types.SourceLink {
	seen := make(map[string]bool, len(existing))
	for _, l := range existing {
		seen[l.URL] = true
	}
	merged := existing
	for _, l := range incoming {
		if l.URL == "" || seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		merged = append(merged, l)
	}
	return merged
}

// Validate checks both tables against the dedup and ordering invariants.
func (m *Matrix) Validate() error {
	for _, tbl := range []types.Table{types.TableIDE, types.TablePlatform} {
		seen := make(map[string]bool)
		for _, r := range m.Table(tbl) {
			key := strings.ToLower(r.FeatureCapability)
			if seen[key] {
				return fmt.Errorf("%w: %q in %s table", ErrDuplicateRow, r.FeatureCapability, tbl)
			}
			seen[key] = true
		}
	}

	if err := validateIDEOrder(m.IDE); err != nil {
		return err
	}
	return validatePlatformOrder(m.Platform)
}
