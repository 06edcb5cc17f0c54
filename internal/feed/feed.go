// Package feed fetches RSS/Atom feeds and normalizes new items since each
// feed's last-seen marker. Malformed entries are skipped and logged, never
// fatal; transient fetch failures are retried with exponential backoff.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/types"
)

// maxFetchElapsed bounds retrying a single feed so one dead source cannot
// stall the whole run.
const maxFetchElapsed = 30 * time.Second

// Processor fetches and normalizes monitored feeds.
type Processor struct {
	parser *gofeed.Parser
	logger *zap.Logger
}

// NewProcessor creates a feed processor with the given logger.
func NewProcessor(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

// Result holds the outcome of fetching one feed.
type Result struct {
	// Items are the normalized new items since the marker.
	Items []types.Item

	// Skipped counts malformed entries dropped from the feed.
	Skipped int

	// Marker is the new last-seen marker (RFC3339 of the newest item);
	// equal to the input marker when nothing new appeared.
	Marker string
}

// Fetch pulls a feed and returns items published after the marker. The
// marker is the RFC3339 timestamp of the newest previously seen item; items
// without a publication time are always emitted and left to seen-key dedup
// downstream.
func (p *Processor) Fetch(ctx context.Context, src config.FeedSource, marker string) (*Result, error) {
	parsed, err := p.parse(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", src.Name, err)
	}

	var since time.Time
	if marker != "" {
		if t, err := time.Parse(time.RFC3339, marker); err == nil {
			since = t
		} else {
			p.logger.Warn("ignoring unparseable feed marker",
				zap.String("feed", src.Name),
				zap.String("marker", marker))
		}
	}

	res := &Result{Marker: marker}
	newest := since

	for _, entry := range parsed.Items {
		if entry == nil || (entry.Title == "" && entry.Link == "") {
			res.Skipped++
			p.logger.Warn("skipping malformed feed entry", zap.String("feed", src.Name))
			continue
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		if !published.IsZero() {
			if !published.After(since) {
				continue
			}
			if published.After(newest) {
				newest = published
			}
		}

		res.Items = append(res.Items, types.Item{
			Source:      src.Name,
			Kind:        types.SourceKindFeed,
			Title:       entry.Title,
			Link:        entry.Link,
			PublishedAt: published,
			RawContent:  entryContent(entry),
		})
	}

	if newest.After(since) {
		res.Marker = newest.UTC().Format(time.RFC3339)
	}

	return res, nil
}

// parse fetches and parses the feed URL with retry.
func (p *Processor) parse(ctx context.Context, url string) (*gofeed.Feed, error) {
	var parsed *gofeed.Feed

	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(maxFetchElapsed)), ctx)
	err := backoff.Retry(func() error {
		var err error
		parsed, err = p.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			p.logger.Debug("feed fetch attempt failed", zap.String("url", url), zap.Error(err))
		}
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// entryContent picks the richest body an entry offers.
func entryContent(entry *gofeed.Item) string {
	if entry.Content != "" {
		return entry.Content
	}
	return entry.Description
}
