package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cam3ron2/github-champion/internal/collect"
	"github.com/cam3ron2/github-champion/internal/config"
	"github.com/cam3ron2/github-champion/internal/contrib"
	"github.com/cam3ron2/github-champion/internal/daterange"
	"github.com/cam3ron2/github-champion/internal/report"
	"github.com/cam3ron2/github-champion/internal/scoring"
)

type fakeCollector struct {
	collectFn func(ctx context.Context, window daterange.Range) (collect.Result, error)
}

func (f *fakeCollector) Collect(ctx context.Context, window daterange.Range) (collect.Result, error) {
	return f.collectFn(ctx, window)
}

func middleEarthMetrics() map[string]contrib.Table {
	return map[string]contrib.Table{
		"the-shire": {
			"gandalf": {IssuesClosed: 1, PullReviews: 2, PullsCreated: 2, Additions: 40, Deletions: 3, Commits: 2},
			"samwise": {PullReviews: 1},
		},
		"rivendell": {
			"gandalf": {IssuesClosed: 2},
			"elrond":  {PullsCreated: 1},
		},
		"mordor": {
			"sauron": {Commits: 4, Additions: 10},
		},
	}
}

func testWindow() daterange.Range {
	return daterange.Range{
		Since: time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, time.September, 30, 23, 59, 59, 0, time.UTC),
	}
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Organization:      "middle-earth",
		OrganizationLabel: "Fellowship All-stars",
		TopN:              3,
		MinEvents:         1,
	}
}

func entryNames(entries []scoring.Entry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

func TestPipelineBuild(t *testing.T) {
	t.Parallel()

	pipeline := NewPipeline(nil, testPipelineConfig(), nil)
	generatedAt := time.Date(2026, time.October, 1, 8, 0, 0, 0, time.UTC)
	output, err := pipeline.Build(middleEarthMetrics(), testWindow(), generatedAt)
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if !reflect.DeepEqual(output.Repositories, []string{"rivendell", "the-shire"}) {
		t.Fatalf("Repositories = %v", output.Repositories)
	}
	if !reflect.DeepEqual(output.Dropped, []string{"mordor"}) {
		t.Fatalf("Dropped = %v", output.Dropped)
	}

	sections := output.Leaderboard.Sections
	if len(sections) != 3 {
		t.Fatalf("sections = %#v", sections)
	}
	wantOrder := []string{"Fellowship All-stars", "rivendell", "the-shire"}
	for idx, name := range wantOrder {
		if sections[idx].Name != name {
			t.Fatalf("section %d = %q, want %q", idx, sections[idx].Name, name)
		}
	}
	if got := entryNames(sections[0].Entries); !reflect.DeepEqual(got, []string{"gandalf", "samwise", "elrond"}) {
		t.Fatalf("org leaderboard = %v", got)
	}
	if sections[0].Entries[0].Total != 5.5 {
		t.Fatalf("gandalf org total = %v, want 5.5", sections[0].Entries[0].Total)
	}

	metadata := output.Leaderboard.Metadata
	if metadata.TimeRange == nil || metadata.TimeRange.Since != "2026-09-01" || metadata.TimeRange.Until != "2026-09-30" {
		t.Fatalf("metadata time range = %#v", metadata.TimeRange)
	}
	if metadata.GeneratedAt != "2026-10-01T08:00:00Z" {
		t.Fatalf("metadata generatedAt = %q", metadata.GeneratedAt)
	}

	if len(output.Detailed) != 4 {
		t.Fatalf("detailed rows = %#v", output.Detailed)
	}
	first := output.Detailed[0]
	if first.Repository != "rivendell" || first.ID != "elrond" || first.Total != 0.5 {
		t.Fatalf("first detailed row = %#v", first)
	}
	shireGandalf := output.Detailed[2]
	if shireGandalf.ID != "gandalf" || shireGandalf.Additions != 40 || shireGandalf.Commits != 2 || shireGandalf.Total != 3.5 {
		t.Fatalf("the-shire gandalf row = %#v", shireGandalf)
	}
}

func TestPipelineBuildMinScore(t *testing.T) {
	t.Parallel()

	cfg := testPipelineConfig()
	cfg.MinScore = 0.75
	pipeline := NewPipeline(nil, cfg, nil)
	output, err := pipeline.Build(middleEarthMetrics(), testWindow(), time.Now())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	org, _ := output.Leaderboard.Section("Fellowship All-stars")
	if got := entryNames(org.Entries); !reflect.DeepEqual(got, []string{"gandalf", "samwise"}) {
		t.Fatalf("org leaderboard = %v", got)
	}
	rivendell, _ := output.Leaderboard.Section("rivendell")
	if got := entryNames(rivendell.Entries); !reflect.DeepEqual(got, []string{"gandalf"}) {
		t.Fatalf("rivendell leaderboard = %v", got)
	}
	if org.Entries[0].Total != 5.5 {
		t.Fatalf("gandalf org total = %v, want 5.5", org.Entries[0].Total)
	}
	if len(output.Detailed) != 3 {
		t.Fatalf("detailed rows = %#v", output.Detailed)
	}
}

func TestPipelineBuildErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		metrics     map[string]contrib.Table
		minEvents   int
		wantErr     error
		wantDropped []string
	}{
		{
			name:    "no_metrics",
			metrics: nil,
			wantErr: ErrNoMetrics,
		},
		{
			name:        "all_filtered",
			metrics:     map[string]contrib.Table{"mordor": {"sauron": {Commits: 1}}, "isengard": {"saruman": {IssuesClosed: 1}}},
			minEvents:   2,
			wantErr:     ErrAllFiltered,
			wantDropped: []string{"isengard", "mordor"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := testPipelineConfig()
			cfg.MinEvents = tc.minEvents
			output, err := NewPipeline(nil, cfg, nil).Build(tc.metrics, testWindow(), time.Now())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Build() error = %v, want %v", err, tc.wantErr)
			}
			if len(tc.wantDropped) > 0 && !reflect.DeepEqual(output.Dropped, tc.wantDropped) {
				t.Fatalf("Dropped = %v, want %v", output.Dropped, tc.wantDropped)
			}
		})
	}
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	window := testWindow()
	collector := &fakeCollector{
		collectFn: func(_ context.Context, got daterange.Range) (collect.Result, error) {
			if !got.Since.Equal(window.Since) || !got.Until.Equal(window.Until) {
				t.Errorf("Collect() window = %#v", got)
			}
			return collect.Result{
				Repositories: middleEarthMetrics(),
				Failed:       []string{"moria"},
				Summary:      collect.Summary{ReposTargeted: 4, ReposCollected: 3, ReposFailed: 1},
			}, nil
		},
	}
	pipeline := NewPipeline(collector, testPipelineConfig(), nil)
	generatedAt := time.Date(2026, time.October, 2, 0, 0, 0, 0, time.UTC)
	pipeline.Now = func() time.Time { return generatedAt }

	output, err := pipeline.Run(context.Background(), window)
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if !reflect.DeepEqual(output.Failed, []string{"moria"}) || output.Collected.ReposTargeted != 4 {
		t.Fatalf("collection details not carried: failed=%v summary=%#v", output.Failed, output.Collected)
	}
	if !output.GeneratedAt.Equal(generatedAt) {
		t.Fatalf("GeneratedAt = %s", output.GeneratedAt)
	}

	snapshot := output.Snapshot("middle-earth")
	if snapshot.Organization != "middle-earth" || !reflect.DeepEqual(snapshot.Repositories, output.Repositories) {
		t.Fatalf("Snapshot() = %#v", snapshot)
	}
	if err := snapshot.Validate(); err != nil {
		t.Fatalf("snapshot.Validate() unexpected error: %v", err)
	}
}

func TestPipelineRunErrors(t *testing.T) {
	t.Parallel()

	collectErr := errors.New("github unavailable")
	testCases := []struct {
		name      string
		collector Collector
		wantErr   error
		wantText  string
	}{
		{
			name:     "nil_collector",
			wantText: "no collector",
		},
		{
			name: "collect_failure",
			collector: &fakeCollector{collectFn: func(context.Context, daterange.Range) (collect.Result, error) {
				return collect.Result{}, collectErr
			}},
			wantErr:  collectErr,
			wantText: "collect contributions",
		},
		{
			name: "nothing_collected",
			collector: &fakeCollector{collectFn: func(context.Context, daterange.Range) (collect.Result, error) {
				return collect.Result{Repositories: map[string]contrib.Table{}}, nil
			}},
			wantErr:  ErrNoMetrics,
			wantText: "no metrics",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewPipeline(tc.collector, testPipelineConfig(), nil).Run(context.Background(), testWindow())
			if err == nil {
				t.Fatalf("Run() expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantText) {
				t.Fatalf("Run() error = %q, want substring %q", err.Error(), tc.wantText)
			}
		})
	}
}

func TestPipelineConfigFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Default(func(c *config.Config) {
		c.GitHub.Organization = "middle-earth"
		c.Leaderboard.MinScore = 2
	})
	if err != nil {
		t.Fatalf("config.Default() unexpected error: %v", err)
	}
	got := PipelineConfigFromConfig(cfg)
	if got.Organization != "middle-earth" || got.TopN != 3 || got.MinEvents != 1 || got.MinScore != 2 {
		t.Fatalf("PipelineConfigFromConfig() = %#v", got)
	}
	if got.OrganizationLabel != report.DefaultOrganizationLabel || got.Weights != scoring.DefaultWeights() {
		t.Fatalf("PipelineConfigFromConfig() label/weights = %#v", got)
	}
}

func TestWriteReports(t *testing.T) {
	t.Parallel()

	output, err := NewPipeline(nil, testPipelineConfig(), nil).Build(middleEarthMetrics(), testWindow(), time.Now())
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "reports")
	paths, err := WriteReports(output, dir, "top-contributors.json", "detailed-metrics.json")
	if err != nil {
		t.Fatalf("WriteReports() unexpected error: %v", err)
	}
	wantPaths := []string{filepath.Join(dir, "top-contributors.json"), filepath.Join(dir, "detailed-metrics.json")}
	if !reflect.DeepEqual(paths, wantPaths) {
		t.Fatalf("WriteReports() paths = %v, want %v", paths, wantPaths)
	}

	leaderboardPayload, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read leaderboard: %v", err)
	}
	var decoded report.LeaderboardReport
	if err := json.Unmarshal(leaderboardPayload, &decoded); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(decoded.Sections) != 3 || decoded.Sections[0].Name != "Fellowship All-stars" {
		t.Fatalf("decoded leaderboard = %#v", decoded)
	}

	detailedPayload, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read detailed: %v", err)
	}
	var rows []report.DetailedMetric
	if err := json.Unmarshal(detailedPayload, &rows); err != nil {
		t.Fatalf("decode detailed: %v", err)
	}
	if len(rows) != len(output.Detailed) {
		t.Fatalf("detailed rows = %d, want %d", len(rows), len(output.Detailed))
	}
}
