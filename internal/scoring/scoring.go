package scoring

import (
	"math"
	"sort"

	"github.com/cam3ron2/github-champion/internal/contrib"
)

// DefaultTopN is the leaderboard length used when none is configured.
const DefaultTopN = 3

// Weights are the per-counter coefficients of the score.
// AggregateOrganization sums totals across repositories, which equals rescoring the
// summed counters only while Total stays linear in the counters.
type Weights struct {
	IssuesClosed float64
	PullReviews  float64
	PullsCreated float64
}

// DefaultWeights returns the fixed 1.0 / 0.75 / 0.5 weighting.
func DefaultWeights() Weights {
	return Weights{
		IssuesClosed: 1.0,
		PullReviews:  0.75,
		PullsCreated: 0.5,
	}
}

// Score is one contributor's counters plus the weighted total derived from them.
type Score struct {
	ID string
	contrib.Counters
	Total float64
}

// Table maps a contributor login to its score.
type Table map[string]Score

// Scorer turns counters into weighted scores.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with fixed weights.
func NewScorer(weights Weights) Scorer {
	return Scorer{weights: weights}
}

// Weights returns the scorer coefficients.
func (s Scorer) Weights() Weights {
	return s.weights
}

// Total computes the weighted total. Additions, deletions and commits never contribute.
func (s Scorer) Total(counters contrib.Counters) float64 {
	return float64(counters.IssuesClosed)*s.weights.IssuesClosed +
		float64(counters.PullReviews)*s.weights.PullReviews +
		float64(counters.PullsCreated)*s.weights.PullsCreated
}

// Score builds the score record for one contributor.
func (s Scorer) Score(id string, counters contrib.Counters) Score {
	return Score{
		ID:       id,
		Counters: counters,
		Total:    s.Total(counters),
	}
}

// ScoreRepository scores every contributor of one repository.
func (s Scorer) ScoreRepository(metrics contrib.Table) Table {
	scores := make(Table, len(metrics))
	for id, counters := range metrics {
		scores[id] = s.Score(id, counters)
	}
	return scores
}

// AggregateOrganization merges per-repository score tables into one organization table.
// Counters and totals are summed field by field.
func AggregateOrganization(perRepo map[string]Table) Table {
	aggregated := make(Table)
	for _, scores := range perRepo {
		for id, score := range scores {
			current, ok := aggregated[id]
			if !ok {
				aggregated[id] = Score{ID: id, Counters: score.Counters, Total: score.Total}
				continue
			}
			current.Counters = current.Counters.Add(score.Counters)
			current.Total += score.Total
			aggregated[id] = current
		}
	}
	return aggregated
}

// Entry is the display projection of a score.
type Entry struct {
	Name         string  `json:"name"`
	Total        float64 `json:"total"`
	PullReviews  int     `json:"pullReviews"`
	IssuesClosed int     `json:"issuesClosed"`
	PullsCreated int     `json:"pullsCreated"`
}

// Ranked returns the scores in leaderboard order: total, issues closed, pull reviews and
// pulls created, all descending, then login ascending.
func Ranked(scores Table) []Score {
	ranked := make([]Score, 0, len(scores))
	for _, score := range scores {
		ranked = append(ranked, score)
	}
	sort.Slice(ranked, func(i, j int) bool {
		left, right := ranked[i], ranked[j]
		if left.Total != right.Total {
			return left.Total > right.Total
		}
		if left.IssuesClosed != right.IssuesClosed {
			return left.IssuesClosed > right.IssuesClosed
		}
		if left.PullReviews != right.PullReviews {
			return left.PullReviews > right.PullReviews
		}
		if left.PullsCreated != right.PullsCreated {
			return left.PullsCreated > right.PullsCreated
		}
		return left.ID < right.ID
	})
	return ranked
}

// Leaderboard returns the top N entries. topN <= 0 yields an empty leaderboard.
func Leaderboard(scores Table, topN int) []Entry {
	if topN <= 0 {
		return []Entry{}
	}

	ranked := Ranked(scores)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	entries := make([]Entry, 0, len(ranked))
	for _, score := range ranked {
		entries = append(entries, Entry{
			Name:         score.ID,
			Total:        Round2(score.Total),
			PullReviews:  score.PullReviews,
			IssuesClosed: score.IssuesClosed,
			PullsCreated: score.PullsCreated,
		})
	}
	return entries
}

// Round2 rounds to two decimal places for display.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// Results bundles every table and leaderboard produced from one set of repository metrics.
type Results struct {
	PerRepoScores       map[string]Table
	OrgScores           Table
	PerRepoLeaderboards map[string][]Entry
	OrgLeaderboard      []Entry
}

// Repositories returns the repository names in ascending order.
func (r Results) Repositories() []string {
	names := make([]string, 0, len(r.PerRepoScores))
	for name := range r.PerRepoScores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeAll scores every repository, aggregates the organization and builds all leaderboards.
func (s Scorer) ComputeAll(repoMetrics map[string]contrib.Table, topN int) Results {
	perRepo := make(map[string]Table, len(repoMetrics))
	for repo, metrics := range repoMetrics {
		perRepo[repo] = s.ScoreRepository(metrics)
	}
	return BuildResults(perRepo, topN)
}

// BuildResults aggregates already-scored repositories and builds all leaderboards.
func BuildResults(perRepo map[string]Table, topN int) Results {
	leaderboards := make(map[string][]Entry, len(perRepo))
	for repo, scores := range perRepo {
		leaderboards[repo] = Leaderboard(scores, topN)
	}

	orgScores := AggregateOrganization(perRepo)
	return Results{
		PerRepoScores:       perRepo,
		OrgScores:           orgScores,
		PerRepoLeaderboards: leaderboards,
		OrgLeaderboard:      Leaderboard(orgScores, topN),
	}
}
