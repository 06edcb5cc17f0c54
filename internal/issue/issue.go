package issue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/types"
)

// IssuesService is the slice of the GitHub API the creator needs.
type IssuesService interface {
	Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
}

// Creator files the per-run review issue against the tracking repository.
type Creator struct {
	issues   IssuesService
	cfg      config.IssueConfig
	assigned bool
	logger   *zap.Logger
}

// NewCreator creates an issue creator. The token comes from
// PERSONAL_ACCESS_TOKEN; without it issue creation degrades to unassigned
// rather than failing.
func NewCreator(ctx context.Context, token string, cfg config.IssueConfig, logger *zap.Logger) *Creator {
	httpClient := oauth2.NewClient(ctx, nil)
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return NewCreatorWithService(github.NewClient(httpClient).Issues, cfg, token != "", logger)
}

// NewCreatorWithService creates a creator with an explicit issues service.
// Tests use this to substitute a stub for the GitHub API.
func NewCreatorWithService(issues IssuesService, cfg config.IssueConfig, assigned bool, logger *zap.Logger) *Creator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{issues: issues, cfg: cfg, assigned: assigned, logger: logger}
}

// Create resolves the template, renders the body, and opens one issue for
// the run. Template resolution happens first so a missing template fails
// before anything touches the GitHub API.
func (c *Creator) Create(ctx context.Context, report *types.RunReport, drafts []types.DraftRecord, manual []types.Item) (string, error) {
	tmplBody, err := ResolveTemplate(c.cfg.TemplateFile)
	if err != nil {
		return "", err
	}

	body, err := Render(tmplBody, report, drafts, manual)
	if err != nil {
		return "", err
	}

	owner, repo, err := splitRepo(c.cfg.Repo)
	if err != nil {
		return "", err
	}

	req := &github.IssueRequest{
		Title:  github.String(fmt.Sprintf("Copilot feature matrix updates — %s", report.StartedAt.UTC().Format("January 2006"))),
		Body:   github.String(body),
		Labels: &[]string{"feature-matrix", "automated"},
	}
	if c.cfg.Assignee != "" && c.assigned {
		req.Assignees = &[]string{c.cfg.Assignee}
	} else if c.cfg.Assignee != "" {
		c.logger.Warn("no access token; creating issue unassigned",
			zap.String("assignee", c.cfg.Assignee))
	}

	created, _, err := c.issues.Create(ctx, owner, repo, req)
	if err != nil {
		return "", fmt.Errorf("create issue in %s: %w", c.cfg.Repo, err)
	}

	url := created.GetHTMLURL()
	c.logger.Info("review issue created", zap.String("url", url))
	return url, nil
}

// splitRepo parses an owner/repo identifier.
func splitRepo(full string) (owner, repo string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid tracking repository %q (want owner/repo)", full)
	}
	return parts[0], parts[1], nil
}
