// Package pipeline orchestrates one end-to-end run: fetch new content from
// every monitored source, clean and classify it, summarize it into draft
// records, and open the review issue. State only advances after the
// corresponding work is persisted, so an interrupted run replays cleanly.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boshu2/featwatch/internal/classify"
	"github.com/boshu2/featwatch/internal/cleaner"
	"github.com/boshu2/featwatch/internal/config"
	"github.com/boshu2/featwatch/internal/feed"
	"github.com/boshu2/featwatch/internal/issue"
	"github.com/boshu2/featwatch/internal/scanner"
	"github.com/boshu2/featwatch/internal/state"
	"github.com/boshu2/featwatch/internal/summarize"
	"github.com/boshu2/featwatch/internal/types"
	"github.com/boshu2/featwatch/internal/worker"
)

const (
	// staleLockAfter is how old a leftover lock must be before a new run
	// may break it.
	staleLockAfter = 2 * time.Hour

	// fetchConcurrency bounds parallel source fetches.
	fetchConcurrency = 4

	// summarizeConcurrency bounds parallel chat completions.
	summarizeConcurrency = 2
)

// Pipeline wires the run stages together.
type Pipeline struct {
	cfg        *config.Config
	store      *state.Store
	artifacts  *state.ArtifactStore
	scanner    *scanner.Scanner
	feeds      *feed.Processor
	summarizer *summarize.Summarizer
	issues     *issue.Creator
	logger     *zap.Logger
	now        func() time.Time
	dryRun     bool
}

// Options tune a run.
type Options struct {
	// DryRun fetches, cleans, classifies, and summarizes but creates no
	// issue and persists no state.
	DryRun bool
}

// New builds a pipeline with real clients. Tokens and API keys come from
// the environment: GITHUB_TOKEN (falling back to PERSONAL_ACCESS_TOKEN)
// for the GitHub API, OPENAI_API_KEY for the summarizer.
func New(ctx context.Context, cfg *config.Config, store *state.Store, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	ghToken := os.Getenv("GITHUB_TOKEN")
	if ghToken == "" {
		ghToken = os.Getenv(config.TokenEnvVar)
	}

	return &Pipeline{
		cfg:        cfg,
		store:      store,
		artifacts:  state.NewArtifactStore(cfg.Paths.ArtifactsDir),
		scanner:    scanner.New(ctx, ghToken, logger),
		feeds:      feed.NewProcessor(logger),
		summarizer: summarize.New(os.Getenv("OPENAI_API_KEY"), cfg.Summarize.Model, logger),
		issues:     issue.NewCreator(ctx, ghToken, cfg.Issue, logger),
		logger:     logger,
		now:        time.Now,
		dryRun:     opts.DryRun,
	}
}

// NewWithComponents builds a pipeline from explicit parts. Tests use this
// to substitute stubs for the network clients.
func NewWithComponents(cfg *config.Config, store *state.Store, sc *scanner.Scanner, fp *feed.Processor, sum *summarize.Summarizer, ic *issue.Creator, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		artifacts:  state.NewArtifactStore(cfg.Paths.ArtifactsDir),
		scanner:    sc,
		feeds:      fp,
		summarizer: sum,
		issues:     ic,
		logger:     logger,
		now:        time.Now,
		dryRun:     opts.DryRun,
	}
}

// Outcome is everything a run produced.
type Outcome struct {
	Report       *types.RunReport
	Drafts       []types.DraftRecord
	ManualReview []types.Item
	IssueURL     string
}

// sourceJob is one fetch unit for the worker pool.
type sourceJob struct {
	name  string
	kind  types.SourceKind
	fetch func(ctx context.Context, marker string) ([]types.Item, int, string, error)
}

// sourceOutcome is the fan-in result for one source.
type sourceOutcome struct {
	result types.SourceResult
	items  []itemWork
	marker string
}

// itemWork pairs an item with its cleaned form.
type itemWork struct {
	item    types.Item
	cleaned cleaner.Result
}

// Run executes one full pipeline pass.
func (p *Pipeline) Run(ctx context.Context) (*Outcome, error) {
	lock, err := p.acquireLock()
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release()
	}

	report := &types.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
	p.logger.Info("run started", zap.String("run_id", report.RunID), zap.Bool("dry_run", p.dryRun))

	// Resolve the issue template up front: without it the run cannot
	// finish, and failing before any API spend is the cheapest failure.
	if !p.dryRun {
		if _, err := issue.ResolveTemplate(p.cfg.Issue.TemplateFile); err != nil {
			return nil, err
		}
	}

	outcomes := p.fetchAll(ctx, report)

	work, deferred := p.collectWork(outcomes)
	drafts, manual := p.summarizeAll(ctx, work)
	report.Drafts = len(drafts)
	report.ManualReview = len(manual)

	out := &Outcome{Report: report, Drafts: drafts, ManualReview: manual}

	if !p.dryRun {
		if err := p.writeDraftsArtifact(report.RunID, drafts); err != nil {
			return nil, err
		}
		if len(drafts) > 0 || len(manual) > 0 {
			url, err := p.issues.Create(ctx, report, drafts, manual)
			if err != nil {
				return nil, err
			}
			out.IssueURL = url
		} else {
			p.logger.Info("no new content, skipping issue", zap.String("run_id", report.RunID))
		}

		if err := p.persist(outcomes, work, deferred, drafts); err != nil {
			return nil, err
		}
	}

	report.FinishedAt = p.now()
	if !p.dryRun {
		if err := p.store.SaveRun(report); err != nil {
			return nil, fmt.Errorf("save run report: %w", err)
		}
	}

	p.logger.Info("run finished",
		zap.String("run_id", report.RunID),
		zap.Int("drafts", report.Drafts),
		zap.Int("manual_review", report.ManualReview),
		zap.String("issue", out.IssueURL))
	return out, nil
}

// acquireLock takes the run lock; dry runs skip it so they can execute
// alongside a real run.
func (p *Pipeline) acquireLock() (*state.Lock, error) {
	if p.dryRun {
		return nil, nil
	}
	lock, err := state.AcquireLock(p.cfg.BaseDir, staleLockAfter)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return lock, nil
}

// fetchAll fans source fetches out over the pool and records per-source
// results on the report. A failed source never aborts the run.
func (p *Pipeline) fetchAll(ctx context.Context, report *types.RunReport) []*sourceOutcome {
	jobs := p.buildJobs()
	pool := worker.NewPool[sourceJob, *sourceOutcome](fetchConcurrency)

	results := pool.Process(jobs, func(job sourceJob) (*sourceOutcome, error) {
		return p.fetchOne(ctx, report.RunID, job)
	})

	outcomes := make([]*sourceOutcome, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			p.logger.Error("source failed",
				zap.String("source", jobs[i].name),
				zap.Error(res.Err))
			report.Sources = append(report.Sources, types.SourceResult{
				Source: jobs[i].name,
				Kind:   jobs[i].kind,
				Err:    res.Err.Error(),
			})
			continue
		}
		report.Sources = append(report.Sources, res.Value.result)
		outcomes = append(outcomes, res.Value)
	}
	return outcomes
}

func (p *Pipeline) buildJobs() []sourceJob {
	var jobs []sourceJob
	for _, src := range p.cfg.Sources.Repos {
		src := src
		jobs = append(jobs, sourceJob{
			name: src.Name,
			kind: types.SourceKindRepo,
			fetch: func(ctx context.Context, marker string) ([]types.Item, int, string, error) {
				res, err := p.scanner.Scan(ctx, src, marker)
				if err != nil {
					return nil, 0, "", err
				}
				return res.Items, res.Skipped, res.Marker, nil
			},
		})
	}
	for _, src := range p.cfg.Sources.Feeds {
		src := src
		jobs = append(jobs, sourceJob{
			name: src.Name,
			kind: types.SourceKindFeed,
			fetch: func(ctx context.Context, marker string) ([]types.Item, int, string, error) {
				res, err := p.feeds.Fetch(ctx, src, marker)
				if err != nil {
					return nil, 0, "", err
				}
				return res.Items, res.Skipped, res.Marker, nil
			},
		})
	}
	return jobs
}

// fetchOne pulls one source, drops already-seen items, cleans the rest,
// and stores the raw and cleaned artifacts for audit.
func (p *Pipeline) fetchOne(ctx context.Context, runID string, job sourceJob) (*sourceOutcome, error) {
	marker, err := p.store.Marker(job.name)
	if err != nil {
		return nil, fmt.Errorf("load marker for %s: %w", job.name, err)
	}

	items, skipped, newMarker, err := job.fetch(ctx, marker)
	if err != nil {
		return nil, err
	}

	fresh, err := p.store.FilterNew(items)
	if err != nil {
		return nil, fmt.Errorf("dedup items for %s: %w", job.name, err)
	}
	skipped += len(items) - len(fresh)

	oc := &sourceOutcome{
		result: types.SourceResult{
			Source:  job.name,
			Kind:    job.kind,
			Fetched: len(fresh),
			Skipped: skipped,
		},
		marker: newMarker,
	}

	if len(fresh) > 0 && !p.dryRun {
		raw, err := json.MarshalIndent(fresh, "", "  ")
		if err != nil {
			return nil, err
		}
		if _, err := p.artifacts.Write(job.name, runID, "items.json", raw); err != nil {
			return nil, fmt.Errorf("write raw artifact for %s: %w", job.name, err)
		}
	}

	for _, item := range fresh {
		oc.items = append(oc.items, itemWork{item: item, cleaned: cleaner.Clean(item.RawContent)})
	}

	if len(oc.items) > 0 && !p.dryRun {
		cleanedTexts := make([]string, len(oc.items))
		for i, w := range oc.items {
			cleanedTexts[i] = w.cleaned.Text
		}
		data, err := json.MarshalIndent(cleanedTexts, "", "  ")
		if err != nil {
			return nil, err
		}
		if _, err := p.artifacts.Write(job.name, runID, "cleaned.json", data); err != nil {
			return nil, fmt.Errorf("write cleaned artifact for %s: %w", job.name, err)
		}
	}

	p.logger.Info("source fetched",
		zap.String("source", job.name),
		zap.Int("new", len(fresh)),
		zap.Int("skipped", skipped))
	return oc, nil
}

// collectWork flattens the per-source work in source order and applies the
// per-run summarization cap. Items over the cap are deferred: they are
// neither summarized nor marked seen, so the next run picks them up.
func (p *Pipeline) collectWork(outcomes []*sourceOutcome) (work []itemWork, deferred map[string]bool) {
	deferred = make(map[string]bool)
	limit := p.cfg.Summarize.MaxItems
	for _, oc := range outcomes {
		for _, w := range oc.items {
			if limit > 0 && len(work) >= limit {
				deferred[oc.result.Source] = true
				continue
			}
			work = append(work, w)
		}
	}
	for source := range deferred {
		p.logger.Warn("item cap reached, deferring remainder to next run",
			zap.String("source", source),
			zap.Int("max_items", limit))
	}
	return work, deferred
}

// summarizeAll classifies and summarizes the work items. Items with no
// destination table and items the summarizer cannot handle go to manual
// review instead of being dropped.
func (p *Pipeline) summarizeAll(ctx context.Context, work []itemWork) ([]types.DraftRecord, []types.Item) {
	type summarized struct {
		draft  *types.DraftRecord
		manual bool
	}

	pool := worker.NewPool[itemWork, summarized](summarizeConcurrency)
	results := pool.Process(work, func(w itemWork) (summarized, error) {
		routing := classify.Classify(w.cleaned.Text, p.cfg.Classify.CrossListing)
		if routing.ExcludedFromPlatform {
			p.logger.Info("platform routing excluded",
				zap.String("title", w.item.Title),
				zap.String("reason", routing.ExclusionReason))
		}
		if len(routing.Tables) == 0 {
			return summarized{manual: true}, nil
		}

		draft, err := p.summarizer.Summarize(ctx, w.item, w.cleaned, routing)
		if err != nil {
			p.logger.Warn("summarization failed, routing to manual review",
				zap.String("title", w.item.Title),
				zap.Error(err))
			return summarized{manual: true}, nil
		}
		return summarized{draft: draft}, nil
	})

	var drafts []types.DraftRecord
	var manual []types.Item
	for i, res := range results {
		switch {
		case res.Err != nil || res.Value.manual:
			manual = append(manual, work[i].item)
		default:
			drafts = append(drafts, *res.Value.draft)
		}
	}
	p.flagDowngrades(drafts)
	return drafts, manual
}

// flagDowngrades compares each draft against the last recorded status for
// its capability. A proposed status the lifecycle does not allow from the
// recorded one gets flagged so the review issue calls it out.
func (p *Pipeline) flagDowngrades(drafts []types.DraftRecord) {
	for i := range drafts {
		d := &drafts[i]
		for _, table := range d.Tables {
			recorded, ok, err := p.store.RecordedStatus(d.Record.FeatureCapability, table)
			if err != nil {
				p.logger.Warn("recorded status lookup failed",
					zap.String("capability", d.Record.FeatureCapability),
					zap.Error(err))
				continue
			}
			if !ok || recorded.CanTransition(d.Record.CurrentStatus) {
				continue
			}
			d.StatusDowngrade = true
			p.logger.Warn("proposed status moves backward",
				zap.String("capability", d.Record.FeatureCapability),
				zap.String("table", string(table)),
				zap.String("recorded", string(recorded)),
				zap.String("proposed", string(d.Record.CurrentStatus)))
		}
	}
}

// writeDraftsArtifact stores the run's draft records for audit and for the
// matrix apply step after review.
func (p *Pipeline) writeDraftsArtifact(runID string, drafts []types.DraftRecord) error {
	if len(drafts) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return err
	}
	if _, err := p.artifacts.Write("run", runID, "drafts.json", data); err != nil {
		return fmt.Errorf("write drafts artifact: %w", err)
	}
	return nil
}

// persist advances seen keys, markers, and recorded statuses. Runs only
// after the issue exists, so a crash before this point re-emits the same
// items instead of silently losing them. Sources with deferred items keep
// their old marker.
func (p *Pipeline) persist(outcomes []*sourceOutcome, work []itemWork, deferred map[string]bool, drafts []types.DraftRecord) error {
	for _, w := range work {
		if err := p.store.MarkSeen(w.item); err != nil {
			return fmt.Errorf("mark seen %q: %w", w.item.Title, err)
		}
	}

	for _, oc := range outcomes {
		if deferred[oc.result.Source] {
			continue
		}
		if oc.marker == "" {
			continue
		}
		if err := p.store.SetMarker(oc.result.Source, oc.result.Kind, oc.marker); err != nil {
			return fmt.Errorf("advance marker for %s: %w", oc.result.Source, err)
		}
	}

	for _, d := range drafts {
		for _, table := range d.Tables {
			if err := p.store.RecordStatus(d.Record.FeatureCapability, table, d.Record.CurrentStatus); err != nil {
				return fmt.Errorf("record status for %q: %w", d.Record.FeatureCapability, err)
			}
		}
	}
	return nil
}
