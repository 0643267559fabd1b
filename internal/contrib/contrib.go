package contrib

import "strings"

// Kind identifies which counter an event increments.
type Kind string

const (
	// KindIssueClosed is a closed issue attributed to its assignee.
	KindIssueClosed Kind = "issue_closed"
	// KindPullCreated is a pull request attributed to its author.
	KindPullCreated Kind = "pull_created"
	// KindPullReview is a submitted pull request review attributed to its reviewer.
	KindPullReview Kind = "pull_review"
	// KindCommit is a commit attributed to its author login.
	KindCommit Kind = "commit"
)

// LineStats carries the line-change counts GitHub reports for a commit.
type LineStats struct {
	Additions int
	Deletions int
}

// Event is one raw contribution record, already filtered to the reporting window.
type Event struct {
	Kind  Kind
	User  string
	Stats *LineStats
}

// Counters is the fixed-shape activity record kept per contributor per repository.
type Counters struct {
	IssuesClosed int `json:"issuesClosed"`
	PullReviews  int `json:"pullReviews"`
	PullsCreated int `json:"pullsCreated"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	Commits      int `json:"commits"`
}

// QualifyingEvents is the number of scored events behind the counters.
func (c Counters) QualifyingEvents() int {
	return c.IssuesClosed + c.PullReviews + c.PullsCreated
}

// Add returns the field-by-field sum of two counter records.
func (c Counters) Add(other Counters) Counters {
	return Counters{
		IssuesClosed: c.IssuesClosed + other.IssuesClosed,
		PullReviews:  c.PullReviews + other.PullReviews,
		PullsCreated: c.PullsCreated + other.PullsCreated,
		Additions:    c.Additions + other.Additions,
		Deletions:    c.Deletions + other.Deletions,
		Commits:      c.Commits + other.Commits,
	}
}

// Table maps a contributor login to its counters for one repository.
type Table map[string]Counters

// QualifyingEvents sums QualifyingEvents across every contributor in the table.
func (t Table) QualifyingEvents() int {
	total := 0
	for _, counters := range t {
		total += counters.QualifyingEvents()
	}
	return total
}

// Accumulator folds events into per-contributor counters.
// Only the record for the event's contributor is mutated; the outer map is never
// iterated while events are being added.
type Accumulator struct {
	counters map[string]*Counters
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{counters: make(map[string]*Counters)}
}

// Add folds one event. Events without a contributor login or with an unknown kind
// are dropped and Add reports false.
func (a *Accumulator) Add(event Event) bool {
	user := strings.TrimSpace(event.User)
	if user == "" {
		return false
	}

	switch event.Kind {
	case KindIssueClosed, KindPullCreated, KindPullReview, KindCommit:
	default:
		return false
	}

	record := a.record(user)
	switch event.Kind {
	case KindIssueClosed:
		record.IssuesClosed++
	case KindPullCreated:
		record.PullsCreated++
	case KindPullReview:
		record.PullReviews++
	case KindCommit:
		record.Commits++
		if event.Stats != nil {
			record.Additions += event.Stats.Additions
			record.Deletions += event.Stats.Deletions
		}
	}
	return true
}

// AddAll folds every event and returns how many were dropped.
func (a *Accumulator) AddAll(events []Event) int {
	dropped := 0
	for _, event := range events {
		if !a.Add(event) {
			dropped++
		}
	}
	return dropped
}

// Table returns a snapshot of the accumulated counters.
func (a *Accumulator) Table() Table {
	table := make(Table, len(a.counters))
	for user, record := range a.counters {
		table[user] = *record
	}
	return table
}

func (a *Accumulator) record(user string) *Counters {
	record, ok := a.counters[user]
	if !ok {
		record = &Counters{}
		a.counters[user] = record
	}
	return record
}

// Accumulate folds any number of event lists into one table.
func Accumulate(eventLists ...[]Event) Table {
	accumulator := NewAccumulator()
	for _, events := range eventLists {
		accumulator.AddAll(events)
	}
	return accumulator.Table()
}
