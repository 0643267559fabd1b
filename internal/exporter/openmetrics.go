// Package exporter renders the latest leaderboard snapshot as Prometheus metrics.
package exporter

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/cam3ron2/github-champion/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	scopeTypeOrganization = "organization"
	scopeTypeRepository   = "repository"
)

var (
	leaderboardLabels = []string{"scope_type", "scope", "user"}
	detailedLabels    = []string{"repository", "user"}

	scoreDesc = prometheus.NewDesc(
		"champion_score_total",
		"Weighted contribution score of a leaderboard entry.",
		leaderboardLabels, nil,
	)
	issuesClosedDesc = prometheus.NewDesc(
		"champion_issues_closed",
		"Issues closed by a leaderboard entry inside the reporting window.",
		leaderboardLabels, nil,
	)
	pullReviewsDesc = prometheus.NewDesc(
		"champion_pull_reviews",
		"Pull request reviews submitted by a leaderboard entry inside the reporting window.",
		leaderboardLabels, nil,
	)
	pullsCreatedDesc = prometheus.NewDesc(
		"champion_pulls_created",
		"Pull requests opened by a leaderboard entry inside the reporting window.",
		leaderboardLabels, nil,
	)
	commitsDesc = prometheus.NewDesc(
		"champion_commits",
		"Commits per contributor and repository inside the reporting window.",
		detailedLabels, nil,
	)
	additionsDesc = prometheus.NewDesc(
		"champion_lines_added",
		"Lines added per contributor and repository inside the reporting window.",
		detailedLabels, nil,
	)
	deletionsDesc = prometheus.NewDesc(
		"champion_lines_deleted",
		"Lines deleted per contributor and repository inside the reporting window.",
		detailedLabels, nil,
	)
	generatedDesc = prometheus.NewDesc(
		"champion_snapshot_generated_timestamp_seconds",
		"Unix time the published snapshot was generated.",
		[]string{"organization"}, nil,
	)
)

// SnapshotReader reads the latest published snapshot.
type SnapshotReader interface {
	Latest(ctx context.Context) (store.Snapshot, error)
}

// NewOpenMetricsHandler returns a handler that renders the latest snapshot through the Prometheus
// OpenMetrics encoder. extra collectors, such as refresh counters, are registered alongside.
func NewOpenMetricsHandler(reader SnapshotReader, extra ...prometheus.Collector) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(&snapshotCollector{reader: reader, timeout: 5 * time.Second})
	for _, collector := range extra {
		if collector != nil {
			registry.MustRegister(collector)
		}
	}

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

type snapshotCollector struct {
	reader  SnapshotReader
	timeout time.Duration
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{scoreDesc, issuesClosedDesc, pullReviewsDesc, pullsCreatedDesc, commitsDesc, additionsDesc, deletionsDesc, generatedDesc} {
		ch <- desc
	}
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.reader == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	snapshot, err := c.reader.Latest(ctx)
	if err != nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(generatedDesc, prometheus.GaugeValue, float64(snapshot.GeneratedAt.Unix()), snapshot.Organization)

	// A user appears once per scope even when a leaderboard lists them twice.
	seen := make(map[[2]string]struct{})
	for _, section := range snapshot.Leaderboard.Sections {
		scopeType := scopeTypeOrganization
		if slices.Contains(snapshot.Repositories, section.Name) {
			scopeType = scopeTypeRepository
		}
		for _, entry := range section.Entries {
			key := [2]string{section.Name, entry.Name}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			labels := []string{scopeType, section.Name, entry.Name}
			ch <- prometheus.MustNewConstMetric(scoreDesc, prometheus.GaugeValue, entry.Total, labels...)
			ch <- prometheus.MustNewConstMetric(issuesClosedDesc, prometheus.GaugeValue, float64(entry.IssuesClosed), labels...)
			ch <- prometheus.MustNewConstMetric(pullReviewsDesc, prometheus.GaugeValue, float64(entry.PullReviews), labels...)
			ch <- prometheus.MustNewConstMetric(pullsCreatedDesc, prometheus.GaugeValue, float64(entry.PullsCreated), labels...)
		}
	}

	for _, row := range snapshot.Detailed {
		ch <- prometheus.MustNewConstMetric(commitsDesc, prometheus.GaugeValue, float64(row.Commits), row.Repository, row.ID)
		ch <- prometheus.MustNewConstMetric(additionsDesc, prometheus.GaugeValue, float64(row.Additions), row.Repository, row.ID)
		ch <- prometheus.MustNewConstMetric(deletionsDesc, prometheus.GaugeValue, float64(row.Deletions), row.Repository, row.ID)
	}
}
