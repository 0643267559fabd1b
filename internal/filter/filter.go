// Package filter holds the threshold rules that drop low-signal repositories and contributors.
package filter

import (
	"github.com/cam3ron2/github-champion/internal/contrib"
	"github.com/cam3ron2/github-champion/internal/scoring"
)

// DefaultMinEvents is the repository activity threshold used when none is configured.
const DefaultMinEvents = 1

// RepositoriesByActivity keeps repositories whose contributors together have at least
// minEvents qualifying events. The input is not modified.
func RepositoriesByActivity(repoMetrics map[string]contrib.Table, minEvents int) map[string]contrib.Table {
	kept := make(map[string]contrib.Table, len(repoMetrics))
	for repo, metrics := range repoMetrics {
		if metrics.QualifyingEvents() >= minEvents {
			kept[repo] = metrics
		}
	}
	return kept
}

// Dropped lists the repositories present in before but not in after.
func Dropped(before, after map[string]contrib.Table) []string {
	dropped := make([]string, 0)
	for repo := range before {
		if _, ok := after[repo]; !ok {
			dropped = append(dropped, repo)
		}
	}
	return dropped
}

// ContributorsByMinScore keeps contributors whose total is at least minScore.
func ContributorsByMinScore(scores scoring.Table, minScore float64) scoring.Table {
	kept := make(scoring.Table, len(scores))
	for id, score := range scores {
		if score.Total >= minScore {
			kept[id] = score
		}
	}
	return kept
}
