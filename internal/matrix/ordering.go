package matrix

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/boshu2/featwatch/internal/types"
)

// vsCodeHints identify rows sourced from VS Code release notes. The IDE
// table keeps all VS Code rows first, so grouping must survive a markdown
// round trip; the hints check link URLs, titles, and feed source names.
var vsCodeHints = []string{"vs code", "vscode", "code.visualstudio.com", "visual studio code"}

// versionPattern matches dotted version strings like "1.101" or "1.101.2".
var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?$`)

// dateLayouts are tried in order when interpreting latestUpdate as a date.
var dateLayouts = []string{"2006-01-02", "2006-01", "January 2006", "Jan 2006", "January 2, 2006"}

// IsVSCode reports whether a record belongs to the VS Code group of the
// IDE table.
func IsVSCode(r types.FeatureRecord) bool {
	probe := func(s string) bool {
		s = strings.ToLower(s)
		for _, h := range vsCodeHints {
			if strings.Contains(s, h) {
				return true
			}
		}
		return false
	}
	if probe(r.Category) {
		return true
	}
	for _, l := range r.SourceLinks {
		if probe(l.URL) || probe(l.Title) || probe(l.FeedSource) {
			return true
		}
	}
	return false
}

// updateKey is a sortable interpretation of a latestUpdate string: either a
// version or a date. Unparseable values sort last.
type updateKey struct {
	isVersion bool
	version   [3]int
	date      time.Time
	ok        bool
}

// parseUpdate interprets a latestUpdate value.
func parseUpdate(s string) updateKey {
	s = strings.TrimSpace(s)
	if s == "" || s == "Unknown" {
		return updateKey{}
	}

	if m := versionPattern.FindStringSubmatch(s); m != nil {
		var k updateKey
		k.isVersion = true
		k.ok = true
		for i := 0; i < 3; i++ {
			if m[i+1] != "" {
				k.version[i], _ = strconv.Atoi(m[i+1])
			}
		}
		return k
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return updateKey{date: t, ok: true}
		}
	}
	return updateKey{}
}

// newerThan orders update keys descending: a sorts before b when a is
// newer. Versions and dates are each compared within their own kind;
// across kinds, versions sort before dates only by parse success.
func (a updateKey) newerThan(b updateKey) bool {
	switch {
	case !a.ok && !b.ok:
		return false
	case !b.ok:
		return true
	case !a.ok:
		return false
	case a.isVersion && b.isVersion:
		return a.version != b.version && versionGreater(a.version, b.version)
	case !a.isVersion && !b.isVersion:
		return a.date.After(b.date)
	default:
		// Mixed kinds within a group are unusual; keep versions first
		// so VS Code version rows stay coherent.
		return a.isVersion
	}
}

func versionGreater(a, b [3]int) bool {
	for i := 0; i < 3; i++ {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// Sort orders both tables per the documented invariants: the IDE table
// with all VS Code rows first (newest version descending) then other rows
// (newest date descending), never interleaved; the Platform table purely
// by latestUpdate descending.
func (m *Matrix) Sort() {
	sort.SliceStable(m.IDE, func(i, j int) bool {
		vi, vj := IsVSCode(m.IDE[i]), IsVSCode(m.IDE[j])
		if vi != vj {
			return vi
		}
		return parseUpdate(m.IDE[i].LatestUpdate).newerThan(parseUpdate(m.IDE[j].LatestUpdate))
	})

	sort.SliceStable(m.Platform, func(i, j int) bool {
		return parseUpdate(m.Platform[i].LatestUpdate).newerThan(parseUpdate(m.Platform[j].LatestUpdate))
	})
}

// validateIDEOrder checks the VS Code-first grouping and the descending
// order within each group.
func validateIDEOrder(rows []types.FeatureRecord) error {
	seenOther := false
	for i, r := range rows {
		if IsVSCode(r) {
			if seenOther {
				return fmt.Errorf("%w: VS Code row %q appears after non-VS Code rows", ErrOutOfOrder, r.FeatureCapability)
			}
		} else {
			seenOther = true
		}

		if i > 0 && sameGroup(rows[i-1], r) {
			prev, cur := parseUpdate(rows[i-1].LatestUpdate), parseUpdate(r.LatestUpdate)
			if cur.newerThan(prev) {
				return fmt.Errorf("%w: %q is newer than preceding row", ErrOutOfOrder, r.FeatureCapability)
			}
		}
	}
	return nil
}

func sameGroup(a, b types.FeatureRecord) bool {
	return IsVSCode(a) == IsVSCode(b)
}

// validatePlatformOrder checks descending latestUpdate order.
func validatePlatformOrder(rows []types.FeatureRecord) error {
	for i := 1; i < len(rows); i++ {
		prev, cur := parseUpdate(rows[i-1].LatestUpdate), parseUpdate(rows[i].LatestUpdate)
		if cur.newerThan(prev) {
			return fmt.Errorf("%w: %q is newer than preceding row", ErrOutOfOrder, rows[i].FeatureCapability)
		}
	}
	return nil
}
