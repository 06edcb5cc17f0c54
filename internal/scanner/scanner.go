// Package scanner diffs monitored GitHub repositories for new release-note
// content since each repository's last-seen marker. Re-running with the
// same marker emits nothing new: markers only advance after items are
// safely recorded.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/types"
)

const (
	// releasePageSize is how many releases are pulled per repository.
	// Monitored repos release at most a handful of times between monthly
	// runs, so one page is plenty.
	releasePageSize = 50

	// maxFetchElapsed bounds retrying a single repository.
	maxFetchElapsed = 30 * time.Second
)

// ReleaseLister is the slice of the GitHub API the scanner needs. The real
// implementation is github.Client.Repositories.
type ReleaseLister interface {
	ListReleases(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error)
}

// Scanner fetches release notes from monitored repositories.
type Scanner struct {
	releases ReleaseLister
	logger   *zap.Logger
}

// New creates a scanner backed by the GitHub API. A non-empty token raises
// rate limits and grants access to private tracking repos; without one the
// scanner runs unauthenticated.
func New(ctx context.Context, token string, logger *zap.Logger) *Scanner {
	httpClient := oauth2.NewClient(ctx, nil)
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewWithLister(github.NewClient(httpClient).Repositories, logger)
}

// NewWithLister creates a scanner with an explicit release lister. Tests use
// this to substitute a stub for the GitHub API.
func NewWithLister(releases ReleaseLister, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{releases: releases, logger: logger}
}

// Result holds the outcome of scanning one repository.
type Result struct {
	// Items are the normalized new releases since the marker.
	Items []types.Item

	// Skipped counts drafts and releases without usable content.
	Skipped int

	// Marker is the new last-seen marker (RFC3339 of the newest release);
	// equal to the input marker when nothing new was published.
	Marker string
}

// Scan lists releases for a repository and returns those published after
// the marker, newest first as the API returns them.
func (s *Scanner) Scan(ctx context.Context, src config.RepoSource, marker string) (*Result, error) {
	owner, repo, err := splitRepo(src.Repo)
	if err != nil {
		return nil, err
	}

	releases, err := s.list(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", src.Repo, err)
	}

	var since time.Time
	if marker != "" {
		if t, err := time.Parse(time.RFC3339, marker); err == nil {
			since = t
		} else {
			s.logger.Warn("ignoring unparseable repo marker",
				zap.String("repo", src.Repo),
				zap.String("marker", marker))
		}
	}

	res := &Result{Marker: marker}
	newest := since

	for _, rel := range releases {
		if rel.GetDraft() {
			res.Skipped++
			continue
		}

		published := rel.GetPublishedAt().Time
		if !published.IsZero() && !published.After(since) {
			continue
		}
		if published.After(newest) {
			newest = published
		}

		title := rel.GetName()
		if title == "" {
			title = rel.GetTagName()
		}
		if title == "" && rel.GetHTMLURL() == "" {
			res.Skipped++
			s.logger.Warn("skipping release without identity", zap.String("repo", src.Repo))
			continue
		}

		res.Items = append(res.Items, types.Item{
			Source:      src.Name,
			Kind:        types.SourceKindRepo,
			Title:       title,
			Link:        rel.GetHTMLURL(),
			PublishedAt: published,
			RawContent:  rel.GetBody(),
		})
	}

	if newest.After(since) {
		res.Marker = newest.UTC().Format(time.RFC3339)
	}

	return res, nil
}

// list pulls one page of releases with retry.
func (s *Scanner) list(ctx context.Context, owner, repo string) ([]*github.RepositoryRelease, error) {
	var releases []*github.RepositoryRelease

	policy := backoff.WithContext(
		backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(maxFetchElapsed)), ctx)
	err := backoff.Retry(func() error {
		var err error
		releases, _, err = s.releases.ListReleases(ctx, owner, repo,
			&github.ListOptions{PerPage: releasePageSize})
		if err != nil {
			s.logger.Debug("release list attempt failed",
				zap.String("repo", owner+"/"+repo), zap.Error(err))
		}
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return releases, nil
}

// splitRepo parses an owner/repo identifier.
func splitRepo(full string) (owner, repo string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository identifier %q (want owner/repo)", full)
	}
	return parts[0], parts[1], nil
}
