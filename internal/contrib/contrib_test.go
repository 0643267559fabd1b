package contrib

import (
	"reflect"
	"testing"
)

func TestAccumulate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		events []Event
		want   Table
	}{
		{
			name:   "empty_input_yields_empty_table",
			events: nil,
			want:   Table{},
		},
		{
			name: "each_kind_increments_one_counter",
			events: []Event{
				{Kind: KindIssueClosed, User: "gandalf"},
				{Kind: KindPullCreated, User: "gandalf"},
				{Kind: KindPullReview, User: "gandalf"},
				{Kind: KindPullReview, User: "samwise"},
				{Kind: KindCommit, User: "samwise", Stats: &LineStats{Additions: 17, Deletions: 4}},
			},
			want: Table{
				"gandalf": {IssuesClosed: 1, PullsCreated: 1, PullReviews: 1},
				"samwise": {PullReviews: 1, Commits: 1, Additions: 17, Deletions: 4},
			},
		},
		{
			name: "commit_without_stats_counts_zero_lines",
			events: []Event{
				{Kind: KindCommit, User: "frodo"},
				{Kind: KindCommit, User: "frodo", Stats: &LineStats{Additions: 123, Deletions: 54}},
			},
			want: Table{
				"frodo": {Commits: 2, Additions: 123, Deletions: 54},
			},
		},
		{
			name: "missing_identity_is_dropped",
			events: []Event{
				{Kind: KindIssueClosed, User: ""},
				{Kind: KindPullReview, User: "   "},
				{Kind: KindPullCreated, User: "frodo"},
			},
			want: Table{
				"frodo": {PullsCreated: 1},
			},
		},
		{
			name: "unknown_kind_is_dropped_without_creating_contributor",
			events: []Event{
				{Kind: Kind("issue_comment"), User: "pippin"},
			},
			want: Table{},
		},
		{
			name: "identity_is_case_sensitive",
			events: []Event{
				{Kind: KindIssueClosed, User: "Merry"},
				{Kind: KindIssueClosed, User: "merry"},
			},
			want: Table{
				"Merry": {IssuesClosed: 1},
				"merry": {IssuesClosed: 1},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := Accumulate(tc.events)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Accumulate() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestAccumulateIsOrderIndependent(t *testing.T) {
	t.Parallel()

	issues := []Event{{Kind: KindIssueClosed, User: "gandalf"}, {Kind: KindIssueClosed, User: "frodo"}}
	reviews := []Event{{Kind: KindPullReview, User: "frodo"}}
	commits := []Event{{Kind: KindCommit, User: "gandalf", Stats: &LineStats{Additions: 5}}}

	forward := Accumulate(issues, reviews, commits)
	backward := Accumulate(commits, reviews, issues)
	if !reflect.DeepEqual(forward, backward) {
		t.Fatalf("Accumulate() order dependent: %#v vs %#v", forward, backward)
	}
}

func TestAccumulatorAddAllReportsDropped(t *testing.T) {
	t.Parallel()

	accumulator := NewAccumulator()
	dropped := accumulator.AddAll([]Event{
		{Kind: KindIssueClosed, User: ""},
		{Kind: KindIssueClosed, User: "gandalf"},
		{Kind: Kind("unknown"), User: "gandalf"},
	})
	if dropped != 2 {
		t.Fatalf("AddAll() dropped = %d, want 2", dropped)
	}

	snapshot := accumulator.Table()
	accumulator.Add(Event{Kind: KindIssueClosed, User: "gandalf"})
	if snapshot["gandalf"].IssuesClosed != 1 {
		t.Fatalf("Table() snapshot mutated by later Add: %#v", snapshot["gandalf"])
	}
}

func TestTableQualifyingEvents(t *testing.T) {
	t.Parallel()

	table := Table{
		"gandalf": {IssuesClosed: 3, PullReviews: 25, PullsCreated: 3, Commits: 13, Additions: 15652},
		"frodo":   {IssuesClosed: 1},
	}
	if got := table.QualifyingEvents(); got != 32 {
		t.Fatalf("QualifyingEvents() = %d, want 32", got)
	}
	if got := (Table{}).QualifyingEvents(); got != 0 {
		t.Fatalf("QualifyingEvents() on empty table = %d, want 0", got)
	}
}

func TestCountersAdd(t *testing.T) {
	t.Parallel()

	left := Counters{IssuesClosed: 1, PullReviews: 2, PullsCreated: 3, Additions: 10, Deletions: 5, Commits: 1}
	right := Counters{IssuesClosed: 2, PullReviews: 1, Additions: 5, Deletions: 2, Commits: 2}
	want := Counters{IssuesClosed: 3, PullReviews: 3, PullsCreated: 3, Additions: 15, Deletions: 7, Commits: 3}
	if got := left.Add(right); got != want {
		t.Fatalf("Add() = %#v, want %#v", got, want)
	}
}
