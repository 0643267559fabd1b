package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	sectionHeading = color.New(color.FgCyan, color.Bold)
	emptyNotice    = color.New(color.FgYellow)
)

// RenderLeaderboard writes every section of the report as a terminal table.
func RenderLeaderboard(w io.Writer, leaderboard LeaderboardReport, now time.Time) error {
	for _, section := range leaderboard.Sections {
		if _, err := sectionHeading.Fprintln(w, section.Name); err != nil {
			return err
		}
		if len(section.Entries) == 0 {
			if _, err := emptyNotice.Fprintln(w, "  no contributors"); err != nil {
				return err
			}
			continue
		}

		tbl := newTable(w)
		tbl.AppendHeader(table.Row{"#", "Contributor", "Score", "Issues closed", "Reviews", "Pulls opened"})
		for idx, entry := range section.Entries {
			tbl.AppendRow(table.Row{
				idx + 1,
				entry.Name,
				humanize.FtoaWithDigits(entry.Total, 2),
				humanize.Comma(int64(entry.IssuesClosed)),
				humanize.Comma(int64(entry.PullReviews)),
				humanize.Comma(int64(entry.PullsCreated)),
			})
		}
		tbl.Render()
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return renderMetadata(w, leaderboard.Metadata, now)
}

// RenderDetailed writes the detailed rows as a single table.
func RenderDetailed(w io.Writer, rows []DetailedMetric) error {
	if len(rows) == 0 {
		_, err := emptyNotice.Fprintln(w, "no detailed metrics")
		return err
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Repository", "Contributor", "Score", "Commits", "Added", "Deleted"})
	for _, row := range rows {
		tbl.AppendRow(table.Row{
			row.Repository,
			row.ID,
			humanize.FtoaWithDigits(row.Total, 2),
			humanize.Comma(int64(row.Commits)),
			humanize.Comma(int64(row.Additions)),
			humanize.Comma(int64(row.Deletions)),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d rows", len(rows))})
	tbl.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	return tbl
}

func renderMetadata(w io.Writer, metadata Metadata, now time.Time) error {
	if metadata.TimeRange != nil {
		if _, err := fmt.Fprintf(w, "Window: %s to %s\n", metadata.TimeRange.Since, metadata.TimeRange.Until); err != nil {
			return err
		}
	}
	if metadata.GeneratedAt == "" {
		return nil
	}
	generatedAt, err := time.Parse(time.RFC3339, metadata.GeneratedAt)
	if err != nil {
		return fmt.Errorf("parse generatedAt %q: %w", metadata.GeneratedAt, err)
	}
	_, err = fmt.Fprintf(w, "Generated: %s (%s)\n", metadata.GeneratedAt, humanize.RelTime(generatedAt, now, "ago", "from now"))
	return err
}
