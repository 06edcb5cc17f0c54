// Package summarize turns cleaned content into draft feature records using
// a chat completion model. Classification happens before this stage; the
// model only fills in the record fields and TL;DR, never the routing.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/boshu2/featwatch/internal/classify"
	"github.com/boshu2/featwatch/internal/cleaner"
	"github.com/boshu2/featwatch/internal/types"
)

// ErrNoRecord is returned when the model response cannot be turned into a
// usable record. Callers surface the item for manual review instead of
// dropping it.
var ErrNoRecord = errors.New("summarizer produced no usable record")

// ChatClient is the slice of the OpenAI client the summarizer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Summarizer produces draft feature records from cleaned items.
type Summarizer struct {
	client ChatClient
	model  string
	logger *zap.Logger
	now    func() time.Time
}

// New creates a summarizer backed by the OpenAI API.
func New(apiKey, model string, logger *zap.Logger) *Summarizer {
	return NewWithClient(openai.NewClient(apiKey), model, logger)
}

// NewWithClient creates a summarizer with an explicit chat client. Tests use
// this to substitute a stub for the API.
func NewWithClient(client ChatClient, model string, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		client: client,
		model:  model,
		logger: logger,
		now:    time.Now,
	}
}

// modelRecord is the JSON contract the prompt asks the model to fill.
type modelRecord struct {
	FeatureCapability string `json:"feature_capability"`
	Category          string `json:"category"`
	FirstIntroduced   string `json:"first_introduced"`
	CurrentStatus     string `json:"current_status"`
	LatestUpdate      string `json:"latest_update"`
	KeyMilestones     string `json:"key_milestones"`
	Summary           string `json:"summary"`
}

// Summarize produces one draft record for an item. The routing decides the
// destination tables; cross-listed drafts get a cross-reference note in
// keyMilestones as the matrix convention requires.
func (s *Summarizer) Summarize(ctx context.Context, item types.Item, cleaned cleaner.Result, routing classify.Routing) (*types.DraftRecord, error) {
	if len(routing.Tables) == 0 {
		return nil, fmt.Errorf("%w: no destination table", ErrNoRecord)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(item, cleaned, routing)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion for %q: %w", item.Title, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrNoRecord)
	}

	var mr modelRecord
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &mr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	if strings.TrimSpace(mr.FeatureCapability) == "" {
		return nil, fmt.Errorf("%w: missing feature_capability", ErrNoRecord)
	}

	now := s.now().UTC()
	record := types.FeatureRecord{
		FeatureCapability: strings.TrimSpace(mr.FeatureCapability),
		Category:          mr.Category,
		FirstIntroduced:   orUnknown(mr.FirstIntroduced),
		CurrentStatus:     types.ParseStatus(mr.CurrentStatus),
		LatestUpdate:      orUnknown(mr.LatestUpdate),
		KeyMilestones:     mr.KeyMilestones,
		SourceLinks:       sourceLinks(item, cleaned),
		DetectionDate:     now,
		LastModified:      now,
	}

	if routing.CrossListed {
		note := "Cross-listed in IDE and Platform tables."
		if record.KeyMilestones == "" {
			record.KeyMilestones = note
		} else {
			record.KeyMilestones += " " + note
		}
	}

	draft := &types.DraftRecord{
		Record:        record,
		Tables:        routing.Tables,
		Summary:       mr.Summary,
		LifecycleFlag: cleaned.Flagged(),
		Item:          item,
	}
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRecord, err)
	}
	return draft, nil
}

// buildUserPrompt assembles the per-item context the model sees.
func buildUserPrompt(item types.Item, cleaned cleaner.Result, routing classify.Routing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s (%s)\n", item.Source, item.Kind)
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Link: %s\n", item.Link)
	if !item.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", item.PublishedAt.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Candidate section: %s\n", sectionLabel(routing.Tables))
	if len(cleaned.LifecycleFlags) > 0 {
		fmt.Fprintf(&b, "Lifecycle keywords present: %s\n", strings.Join(cleaned.LifecycleFlags, ", "))
	}
	fmt.Fprintf(&b, "\nContent:\n%s\n", cleaned.Text)
	return b.String()
}

func sectionLabel(tables []types.Table) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		switch t {
		case types.TableIDE:
			names[i] = "IDE"
		case types.TablePlatform:
			names[i] = "Platform"
		}
	}
	return strings.Join(names, " and ")
}

// sourceLinks builds attribution: the item link first, then extracted links.
func sourceLinks(item types.Item, cleaned cleaner.Result) []types.SourceLink {
	links := []types.SourceLink{{URL: item.Link, Title: item.Title, FeedSource: item.Source}}
	for _, l := range cleaned.Links {
		if l.URL == item.Link {
			continue
		}
		links = append(links, types.SourceLink{URL: l.URL, Title: l.Text, FeedSource: item.Source})
	}
	return links
}

// stripFences removes a markdown code fence wrapper, which some models add
// despite the JSON response format.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// orUnknown substitutes the documented "Unknown" placeholder for blanks.
func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
