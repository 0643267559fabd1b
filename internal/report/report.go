// Package report assembles the leaderboard and detailed-metrics documents and writes them to disk.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cam3ron2/github-champion/internal/scoring"
)

// DefaultOrganizationLabel keys the organization leaderboard when no label is configured.
const DefaultOrganizationLabel = "Organization All-stars"

const metadataKey = "_metadata"

// TimeRange is the reporting window as calendar dates.
type TimeRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

// Metadata trails the leaderboard document.
type Metadata struct {
	TimeRange   *TimeRange `json:"timeRange,omitempty"`
	GeneratedAt string     `json:"generatedAt,omitempty"`
}

// IsZero reports whether there is nothing to emit.
func (m Metadata) IsZero() bool {
	return m.TimeRange == nil && m.GeneratedAt == ""
}

// NewMetadata builds metadata from optional window dates and generation time.
func NewMetadata(since, until string, generatedAt time.Time) Metadata {
	metadata := Metadata{}
	if since != "" || until != "" {
		metadata.TimeRange = &TimeRange{Since: since, Until: until}
	}
	if !generatedAt.IsZero() {
		metadata.GeneratedAt = generatedAt.UTC().Format(time.RFC3339)
	}
	return metadata
}

// Section is one keyed leaderboard in the document.
type Section struct {
	Name    string
	Entries []scoring.Entry
}

// LeaderboardReport is the ordered leaderboard document. It serializes as a JSON array of
// single-key objects: the organization first, then repositories, then optional metadata.
type LeaderboardReport struct {
	Sections []Section
	Metadata Metadata
}

// Section returns the named section.
func (r LeaderboardReport) Section(name string) (Section, bool) {
	for _, section := range r.Sections {
		if section.Name == name {
			return section, true
		}
	}
	return Section{}, false
}

// BuildLeaderboard assembles the document. Repository sections follow repositories order.
func BuildLeaderboard(organizationLabel string, results scoring.Results, repositories []string, metadata Metadata) LeaderboardReport {
	if organizationLabel == "" {
		organizationLabel = DefaultOrganizationLabel
	}

	sections := make([]Section, 0, len(repositories)+1)
	sections = append(sections, Section{Name: organizationLabel, Entries: nonNilEntries(results.OrgLeaderboard)})
	for _, repo := range repositories {
		entries, ok := results.PerRepoLeaderboards[repo]
		if !ok {
			continue
		}
		sections = append(sections, Section{Name: repo, Entries: nonNilEntries(entries)})
	}

	return LeaderboardReport{Sections: sections, Metadata: metadata}
}

// MarshalJSON implements json.Marshaler.
func (r LeaderboardReport) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(r.Sections)+1)
	for _, section := range r.Sections {
		items = append(items, map[string][]scoring.Entry{section.Name: nonNilEntries(section.Entries)})
	}
	if !r.Metadata.IsZero() {
		items = append(items, map[string]Metadata{metadataKey: r.Metadata})
	}
	return json.Marshal(items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *LeaderboardReport) UnmarshalJSON(data []byte) error {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode leaderboard report: %w", err)
	}

	decoded := LeaderboardReport{Sections: make([]Section, 0, len(items))}
	for idx, item := range items {
		if len(item) != 1 {
			return fmt.Errorf("decode leaderboard report: item %d has %d keys, want 1", idx, len(item))
		}
		for name, raw := range item {
			if name == metadataKey {
				if err := json.Unmarshal(raw, &decoded.Metadata); err != nil {
					return fmt.Errorf("decode leaderboard metadata: %w", err)
				}
				continue
			}
			var entries []scoring.Entry
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("decode leaderboard section %q: %w", name, err)
			}
			decoded.Sections = append(decoded.Sections, Section{Name: name, Entries: nonNilEntries(entries)})
		}
	}

	*r = decoded
	return nil
}

// DetailedMetric is one (repository, contributor) row of the detailed-metrics document.
type DetailedMetric struct {
	Repository   string     `json:"repository"`
	ID           string     `json:"id"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	Commits      int        `json:"commits"`
	PullsCreated int        `json:"pullsCreated"`
	PullReviews  int        `json:"pullReviews"`
	IssuesClosed int        `json:"issuesClosed"`
	Total        float64    `json:"total"`
	TimeRange    *TimeRange `json:"timeRange,omitempty"`
	GeneratedAt  string     `json:"generatedAt,omitempty"`
}

// BuildDetailed flattens per-repository score tables. Rows follow repositories order and
// contributors are ordered by login inside each repository.
func BuildDetailed(perRepo map[string]scoring.Table, repositories []string, metadata Metadata) []DetailedMetric {
	rows := make([]DetailedMetric, 0)
	for _, repo := range repositories {
		scores, ok := perRepo[repo]
		if !ok {
			continue
		}
		for _, id := range sortedIDs(scores) {
			score := scores[id]
			rows = append(rows, DetailedMetric{
				Repository:   repo,
				ID:           id,
				Additions:    score.Additions,
				Deletions:    score.Deletions,
				Commits:      score.Commits,
				PullsCreated: score.PullsCreated,
				PullReviews:  score.PullReviews,
				IssuesClosed: score.IssuesClosed,
				Total:        scoring.Round2(score.Total),
				TimeRange:    metadata.TimeRange,
				GeneratedAt:  metadata.GeneratedAt,
			})
		}
	}
	return rows
}

// Encode renders any report value as two-space indented JSON with a trailing newline.
func Encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes value to path, creating parent directories as needed.
func WriteJSON(path string, value any) error {
	payload, err := Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func nonNilEntries(entries []scoring.Entry) []scoring.Entry {
	if entries == nil {
		return []scoring.Entry{}
	}
	return entries
}

func sortedIDs(scores scoring.Table) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
