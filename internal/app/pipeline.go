package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cam3ron2/github-champion/internal/collect"
	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/contrib"
	"github.com/cam3ron2/github-champion/internal/daterange"
	"github.com/cam3ron2/github-champion/internal/filter"
	"github.com/cam3ron2/github-champion/internal/report"
	"github.com/cam3ron2/github-champion/internal/scoring"
	"github.com/cam3ron2/github-champion/internal/store"
	"github.com/cam3ron2/github-champion/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const tracerName = "github-champion/internal/app"

var (
	// ErrNoMetrics means no repository produced any contributor data.
	ErrNoMetrics = errors.New("no metrics collected for any repository")
	// ErrAllFiltered means the activity filter removed every repository.
	ErrAllFiltered = errors.New("all repositories filtered out due to insufficient activity")
)

// Collector gathers per-repository counter tables for a reporting window.
type Collector interface {
	Collect(ctx context.Context, window daterange.Range) (collect.Result, error)
}

// PipelineConfig controls filtering and ranking.
type PipelineConfig struct {
	Organization      string
	OrganizationLabel string
	TopN              int
	MinEvents         int
	MinScore          float64
	Weights           scoring.Weights
}

// PipelineConfigFromConfig maps application configuration onto pipeline settings.
func PipelineConfigFromConfig(cfg *config.Config) PipelineConfig {
	return PipelineConfig{
		Organization:      cfg.GitHub.Organization,
		OrganizationLabel: cfg.Leaderboard.OrganizationLabel,
		TopN:              cfg.Leaderboard.TopN,
		MinEvents:         cfg.Leaderboard.MinEvents,
		MinScore:          cfg.Leaderboard.MinScore,
		Weights:           scoring.DefaultWeights(),
	}
}

// Output is everything one pipeline run produced.
type Output struct {
	Window       daterange.Range
	GeneratedAt  time.Time
	Collected    collect.Summary
	Failed       []string
	Dropped      []string
	Repositories []string
	Results      scoring.Results
	Leaderboard  report.LeaderboardReport
	Detailed     []report.DetailedMetric
}

// Snapshot converts the output into a publishable snapshot.
func (o Output) Snapshot(organization string) store.Snapshot {
	return store.Snapshot{
		Organization: organization,
		GeneratedAt:  o.GeneratedAt,
		Repositories: append([]string(nil), o.Repositories...),
		Leaderboard:  o.Leaderboard,
		Detailed:     o.Detailed,
	}
}

// Pipeline runs collect, accumulate, filter, score, rank and report.
type Pipeline struct {
	collector Collector
	cfg       PipelineConfig
	scorer    scoring.Scorer
	logger    *zap.Logger

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewPipeline creates a pipeline over collector.
func NewPipeline(collector Collector, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OrganizationLabel == "" {
		cfg.OrganizationLabel = report.DefaultOrganizationLabel
	}
	if cfg.Weights == (scoring.Weights{}) {
		cfg.Weights = scoring.DefaultWeights()
	}
	return &Pipeline{
		collector: collector,
		cfg:       cfg,
		scorer:    scoring.NewScorer(cfg.Weights),
		logger:    logger,
		Now:       time.Now,
	}
}

// Run collects window and builds the reports.
func (p *Pipeline) Run(ctx context.Context, window daterange.Range) (output Output, err error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "pipeline.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "pipeline completed")
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("github.organization", p.cfg.Organization),
		attribute.String("window.since", window.Since.UTC().Format(time.RFC3339)),
		attribute.String("window.until", window.Until.UTC().Format(time.RFC3339)),
	)

	if p.collector == nil {
		return Output{}, fmt.Errorf("pipeline has no collector")
	}
	collected, err := p.collector.Collect(ctx, window)
	if err != nil {
		return Output{}, fmt.Errorf("collect contributions: %w", err)
	}
	p.logger.Info("collection finished",
		zap.Int("repos_targeted", collected.Summary.ReposTargeted),
		zap.Int("repos_collected", collected.Summary.ReposCollected),
		zap.Int("repos_failed", collected.Summary.ReposFailed),
		zap.Int("repos_empty", collected.Summary.ReposEmpty),
		zap.Int("events", collected.Summary.EventsAccepted),
		zap.Int("rate_limit_min_remaining", collected.Summary.RateLimitMinRemaining),
	)

	output, err = p.Build(collected.Repositories, window, p.Now())
	output.Collected = collected.Summary
	output.Failed = collected.Failed
	span.SetAttributes(
		attribute.Int("repositories.collected", len(collected.Repositories)),
		attribute.Int("repositories.kept", len(output.Repositories)),
	)
	return output, err
}

// Build filters, scores and ranks already-collected repository tables.
func (p *Pipeline) Build(repoMetrics map[string]contrib.Table, window daterange.Range, generatedAt time.Time) (Output, error) {
	output := Output{Window: window, GeneratedAt: generatedAt.UTC()}
	if len(repoMetrics) == 0 {
		return output, ErrNoMetrics
	}

	active := filter.RepositoriesByActivity(repoMetrics, p.cfg.MinEvents)
	output.Dropped = filter.Dropped(repoMetrics, active)
	sort.Strings(output.Dropped)
	for _, repo := range output.Dropped {
		p.logger.Info("repository filtered out", zap.String("repo", repo), zap.Int("min_events", p.cfg.MinEvents))
	}
	if len(active) == 0 {
		return output, ErrAllFiltered
	}

	results := p.scorer.ComputeAll(active, p.cfg.TopN)
	if p.cfg.MinScore > 0 {
		results = applyMinScore(results, p.cfg.MinScore, p.cfg.TopN)
	}

	output.Results = results
	output.Repositories = results.Repositories()
	since, until := window.DateStrings()
	metadata := report.NewMetadata(since, until, output.GeneratedAt)
	output.Leaderboard = report.BuildLeaderboard(p.cfg.OrganizationLabel, results, output.Repositories, metadata)
	output.Detailed = report.BuildDetailed(results.PerRepoScores, output.Repositories, metadata)
	return output, nil
}

// applyMinScore filters every score table. The organization table is aggregated before
// filtering so totals still sum over all repositories.
func applyMinScore(results scoring.Results, minScore float64, topN int) scoring.Results {
	perRepo := make(map[string]scoring.Table, len(results.PerRepoScores))
	leaderboards := make(map[string][]scoring.Entry, len(results.PerRepoScores))
	for repo, scores := range results.PerRepoScores {
		perRepo[repo] = filter.ContributorsByMinScore(scores, minScore)
		leaderboards[repo] = scoring.Leaderboard(perRepo[repo], topN)
	}
	orgScores := filter.ContributorsByMinScore(results.OrgScores, minScore)
	return scoring.Results{
		PerRepoScores:       perRepo,
		OrgScores:           orgScores,
		PerRepoLeaderboards: leaderboards,
		OrgLeaderboard:      scoring.Leaderboard(orgScores, topN),
	}
}

// WriteReports writes the leaderboard and detailed documents into dir.
func WriteReports(output Output, dir, leaderboardFile, detailedFile string) ([]string, error) {
	paths := []string{filepath.Join(dir, leaderboardFile), filepath.Join(dir, detailedFile)}
	if err := report.WriteJSON(paths[0], output.Leaderboard); err != nil {
		return nil, fmt.Errorf("write leaderboard report: %w", err)
	}
	if err := report.WriteJSON(paths[1], output.Detailed); err != nil {
		return nil, fmt.Errorf("write detailed report: %w", err)
	}
	return paths, nil
}
