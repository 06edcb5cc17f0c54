package matrix

import (
	"encoding/json"
	"time"

	"github.com/boshu2/featwatch/internal/types"
)

// Export is the machine-readable mirror of one table. Statuses are literal
// words here; emoji decoration belongs to the markdown rendering only.
type Export struct {
	Metadata ExportMetadata        `json:"metadata"`
	Features []types.FeatureRecord `json:"features"`
}

type ExportMetadata struct {
	Platform    string   `json:"platform"`
	LastUpdated string   `json:"lastUpdated"`
	GeneratedBy string   `json:"generatedBy"`
	FeedSources []string `json:"feedSources"`
}

// ExportJSON serializes one table with its metadata envelope.
func ExportJSON(rows []types.FeatureRecord, platform string, feedSources []string, now time.Time) ([]byte, error) {
	if rows == nil {
		rows = []types.FeatureRecord{}
	}
	if feedSources == nil {
		feedSources = []string{}
	}
	out := Export{
		Metadata: ExportMetadata{
			Platform:    platform,
			LastUpdated: now.UTC().Format(time.RFC3339),
			GeneratedBy: "featwatch",
			FeedSources: feedSources,
		},
		Features: rows,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
