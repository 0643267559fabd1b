// Package collect gathers contribution events for every repository of an organization.
package collect

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/github-champion/internal/contrib"
	"github.com/cam3ron2/github-champion/internal/daterange"
	"github.com/cam3ron2/github-champion/internal/githubapi"
	"go.uber.org/zap"
)

const (
	endpointIssues  = "issues_closed"
	endpointPulls   = "pulls"
	endpointReviews = "pull_reviews"
	endpointCommits = "commits"
	endpointCommit  = "commit_detail"
)

// GitHubDataClient is the typed GitHub API surface the collector reads from.
type GitHubDataClient interface {
	ListClosedIssuesWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.IssueListResult, error)
	ListRepoPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.PullRequestListResult, error)
	ListPullReviews(ctx context.Context, owner, repo string, pullNumber int, since, until time.Time) (githubapi.PullReviewsResult, error)
	ListRepoCommitsWindow(ctx context.Context, owner, repo string, since, until time.Time, maxCommits int) (githubapi.CommitListResult, error)
	GetCommit(ctx context.Context, owner, repo, sha string) (githubapi.CommitDetail, error)
}

// RepoLister discovers the repositories of an organization.
type RepoLister interface {
	ListOrgRepoNames(ctx context.Context, org string) ([]string, error)
}

// Config configures an OrgCollector.
type Config struct {
	Organization            string
	Repositories            []string
	Concurrency             int
	CommitStats             bool
	MaxCommitDetailsPerRepo int
	Logger                  *zap.Logger
}

// Summary describes one collection run.
type Summary struct {
	ReposTargeted         int
	ReposCollected        int
	ReposEmpty            int
	ReposFailed           int
	EventsAccepted        int
	EventsDropped         int
	CommitDetailBudgetHits      int
	RateLimitMinRemaining int
	SecondaryLimitHits    int
	EndpointFailures      map[string]int
}

// Result holds per-repository counter tables. Failed and empty repositories are absent.
type Result struct {
	Repositories map[string]contrib.Table
	Failed       []string
	Summary      Summary
}

// OrgCollector collects one organization with a bounded worker pool.
type OrgCollector struct {
	client GitHubDataClient
	lister RepoLister
	cfg    Config
	logger *zap.Logger
}

type repositoryOutcome struct {
	repo     string
	table    contrib.Table
	accepted int
	dropped  int
	err      error
}

type runSummary struct {
	mu           sync.Mutex
	minRemaining int
	secondaryHit int
	budgetHits   int
	failures     map[string]int
}

// NewOrgCollector creates a collector. lister may be nil when repositories are configured.
func NewOrgCollector(client GitHubDataClient, lister RepoLister, cfg Config) *OrgCollector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	cfg.Organization = strings.TrimSpace(cfg.Organization)
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrgCollector{
		client: client,
		lister: lister,
		cfg:    cfg,
		logger: logger,
	}
}

// ResolveRepositories returns the configured repositories, or discovers them when none are configured.
func (c *OrgCollector) ResolveRepositories(ctx context.Context) ([]string, error) {
	if len(c.cfg.Repositories) > 0 {
		repos := make([]string, 0, len(c.cfg.Repositories))
		for _, repo := range c.cfg.Repositories {
			trimmed := strings.TrimSpace(repo)
			if trimmed == "" || slices.Contains(repos, trimmed) {
				continue
			}
			repos = append(repos, trimmed)
		}
		return repos, nil
	}
	if c.lister == nil {
		return nil, fmt.Errorf("no repositories configured and no repository lister available")
	}
	repos, err := c.lister.ListOrgRepoNames(ctx, c.cfg.Organization)
	if err != nil {
		return nil, fmt.Errorf("list repositories for %q: %w", c.cfg.Organization, err)
	}
	c.logger.Info("discovered repositories", zap.String("org", c.cfg.Organization), zap.Int("count", len(repos)))
	return repos, nil
}

// Collect gathers events for every resolved repository inside window.
func (c *OrgCollector) Collect(ctx context.Context, window daterange.Range) (Result, error) {
	if c == nil || c.client == nil {
		return Result{}, fmt.Errorf("collector has no github client")
	}
	if c.cfg.Organization == "" {
		return Result{}, fmt.Errorf("organization is required")
	}

	repos, err := c.ResolveRepositories(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Repositories: make(map[string]contrib.Table, len(repos)),
		Failed:       []string{},
		Summary:      Summary{ReposTargeted: len(repos)},
	}
	summary := &runSummary{minRemaining: -1, failures: make(map[string]int)}

	jobs := make(chan string, len(repos))
	outcomes := make(chan repositoryOutcome, len(repos))

	var wg sync.WaitGroup
	for range min(c.cfg.Concurrency, max(len(repos), 1)) {
		wg.Go(func() {
			for repo := range jobs {
				outcomes <- c.collectRepository(ctx, repo, window, summary)
			}
		})
	}

	for _, repo := range repos {
		jobs <- repo
	}
	close(jobs)

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		result.Summary.EventsAccepted += outcome.accepted
		result.Summary.EventsDropped += outcome.dropped
		switch {
		case outcome.err != nil:
			result.Failed = append(result.Failed, outcome.repo)
		case len(outcome.table) == 0:
			result.Summary.ReposEmpty++
		default:
			result.Repositories[outcome.repo] = outcome.table
		}
	}
	sort.Strings(result.Failed)

	result.Summary.ReposCollected = len(result.Repositories)
	result.Summary.ReposFailed = len(result.Failed)
	result.Summary.RateLimitMinRemaining, result.Summary.SecondaryLimitHits, result.Summary.CommitDetailBudgetHits, result.Summary.EndpointFailures = summary.snapshot()

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("collect %q: %w", c.cfg.Organization, err)
	}
	return result, nil
}

// CollectRepository gathers and accumulates one repository's events.
func (c *OrgCollector) CollectRepository(ctx context.Context, repo string, window daterange.Range) (contrib.Table, error) {
	outcome := c.collectRepository(ctx, repo, window, &runSummary{minRemaining: -1, failures: make(map[string]int)})
	return outcome.table, outcome.err
}

func (c *OrgCollector) collectRepository(ctx context.Context, repo string, window daterange.Range, summary *runSummary) repositoryOutcome {
	logger := c.logger.With(zap.String("org", c.cfg.Organization), zap.String("repo", repo))
	logger.Debug("collecting repository")

	events, err := c.repositoryEvents(ctx, repo, window, summary, logger)
	if err != nil {
		logger.Error("repository collection failed", zap.Error(err))
		return repositoryOutcome{repo: repo, err: err}
	}

	accumulator := contrib.NewAccumulator()
	dropped := accumulator.AddAll(events)
	table := accumulator.Table()
	logger.Info("collected repository",
		zap.Int("contributors", len(table)),
		zap.Int("events", len(events)-dropped),
		zap.Int("dropped_events", dropped),
	)
	return repositoryOutcome{repo: repo, table: table, accepted: len(events) - dropped, dropped: dropped}
}

func (c *OrgCollector) repositoryEvents(ctx context.Context, repo string, window daterange.Range, summary *runSummary, logger *zap.Logger) ([]contrib.Event, error) {
	owner := c.cfg.Organization
	var events []contrib.Event

	issues, err := c.client.ListClosedIssuesWindow(ctx, owner, repo, window.Since, window.Until)
	if err != nil {
		return nil, fmt.Errorf("list closed issues: %w", err)
	}
	summary.observe(endpointIssues, issues.Status, issues.Metadata, logger)
	for _, issue := range issues.Issues {
		events = append(events, contrib.Event{Kind: contrib.KindIssueClosed, User: issue.Assignee})
	}

	pulls, err := c.client.ListRepoPullRequestsWindow(ctx, owner, repo, window.Since, window.Until)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	summary.observe(endpointPulls, pulls.Status, pulls.Metadata, logger)
	for _, pull := range pulls.PullRequests {
		events = append(events, contrib.Event{Kind: contrib.KindPullCreated, User: pull.User})

		reviews, err := c.client.ListPullReviews(ctx, owner, repo, pull.Number, window.Since, window.Until)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("list pull reviews: %w", ctxErr)
			}
			summary.fail(endpointReviews)
			logger.Warn("skipping pull request reviews", zap.Int("pull", pull.Number), zap.Error(err))
			continue
		}
		summary.observe(endpointReviews, reviews.Status, reviews.Metadata, logger)
		for _, review := range reviews.Reviews {
			events = append(events, contrib.Event{Kind: contrib.KindPullReview, User: review.User})
		}
	}

	commits, err := c.commitEvents(ctx, repo, window, summary, logger)
	if err != nil {
		return nil, err
	}
	return append(events, commits...), nil
}

func (c *OrgCollector) commitEvents(ctx context.Context, repo string, window daterange.Range, summary *runSummary, logger *zap.Logger) ([]contrib.Event, error) {
	owner := c.cfg.Organization

	listed, err := c.client.ListRepoCommitsWindow(ctx, owner, repo, window.Since, window.Until, 0)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	summary.observe(endpointCommits, listed.Status, listed.Metadata, logger)

	budget := c.cfg.MaxCommitDetailsPerRepo
	events := make([]contrib.Event, 0, len(listed.Commits))
	for _, commit := range listed.Commits {
		event := contrib.Event{Kind: contrib.KindCommit, User: commit.Author}
		if c.cfg.CommitStats && strings.TrimSpace(commit.Author) != "" {
			if budget <= 0 {
				events = append(events, event)
				continue
			}
			budget--
			detail, err := c.client.GetCommit(ctx, owner, repo, commit.SHA)
			switch {
			case err != nil && ctx.Err() != nil:
				return nil, fmt.Errorf("get commit %s: %w", commit.SHA, errors.Join(err, ctx.Err()))
			case err != nil:
				summary.fail(endpointCommit)
				logger.Warn("commit detail unavailable", zap.String("sha", commit.SHA), zap.Error(err))
			default:
				summary.observe(endpointCommit, detail.Status, detail.Metadata, logger)
				if detail.Status == githubapi.EndpointStatusOK {
					event.Stats = &contrib.LineStats{Additions: detail.Additions, Deletions: detail.Deletions}
				}
			}
		}
		events = append(events, event)
	}
	if c.cfg.CommitStats && budget <= 0 && countAttributed(listed.Commits) > c.cfg.MaxCommitDetailsPerRepo {
		summary.budgetHit()
		logger.Warn("commit detail budget exhausted", zap.Int("max_commit_details", c.cfg.MaxCommitDetailsPerRepo))
	}
	return events, nil
}

func countAttributed(commits []githubapi.RepoCommit) int {
	count := 0
	for _, commit := range commits {
		if strings.TrimSpace(commit.Author) != "" {
			count++
		}
	}
	return count
}

func (s *runSummary) observe(endpoint string, status githubapi.EndpointStatus, metadata githubapi.CallMetadata, logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	headers := metadata.LastRateHeaders
	if headers.Present && (s.minRemaining < 0 || headers.Remaining < s.minRemaining) {
		s.minRemaining = headers.Remaining
	}
	if headers.SecondaryLimited || metadata.LastDecision.Reason == githubapi.ReasonSecondaryLimit {
		s.secondaryHit++
	}
	if status != githubapi.EndpointStatusOK {
		s.failures[endpoint]++
		logger.Error("github endpoint returned non-success status",
			zap.String("endpoint", endpoint),
			zap.String("status", string(status)),
		)
	}
}

func (s *runSummary) fail(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint]++
}

func (s *runSummary) budgetHit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgetHits++
}

func (s *runSummary) snapshot() (int, int, int, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := make(map[string]int, len(s.failures))
	for endpoint, count := range s.failures {
		failures[endpoint] = count
	}
	return s.minRemaining, s.secondaryHit, s.budgetHits, failures
}
