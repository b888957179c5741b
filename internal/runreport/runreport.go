// Package runreport renders a batch of site runs as a Markdown document.
package runreport

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Batch is the input to Write.
type Batch struct {
	Day       string
	StartedAt time.Time
	Results   []tracker.RunResult
}

// Write renders b to w.
func Write(w io.Writer, b Batch) error {
	md := markdown.NewMarkdown(w)
	counts := tally(b.Results)

	md.H1("Accessibility scan report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Schedule", b.Day},
			{"Started", b.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Sites", strconv.Itoa(len(b.Results))},
			{"Succeeded", strconv.Itoa(counts[tracker.StatusSuccess])},
			{"Failed", strconv.Itoa(counts[tracker.StatusFailed])},
			{"Skipped (lock held)", strconv.Itoa(counts[tracker.StatusLockContended])},
		},
	})
	md.PlainText("")

	switch {
	case counts[tracker.StatusFailed] > 0:
		md.Cautionf("%d of %d site(s) failed.", counts[tracker.StatusFailed], len(b.Results))
	case counts[tracker.StatusLockContended] > 0:
		md.Warningf("%d site(s) were skipped because another run held the lock.", counts[tracker.StatusLockContended])
	case len(b.Results) == 0:
		md.Note("No sites were scheduled.")
	default:
		md.Tip("Every site published.")
	}
	md.PlainText("")

	if len(b.Results) > 1 {
		chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Outcomes"), piechart.WithShowData(true))
		for _, st := range []tracker.RunStatus{tracker.StatusSuccess, tracker.StatusFailed, tracker.StatusLockContended} {
			if n := counts[st]; n > 0 {
				chart.LabelAndIntValue(string(st), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H2("Sites")
	md.PlainText("")
	rows := make([][]string, 0, len(b.Results))
	for _, r := range b.Results {
		rows = append(rows, siteRow(r))
	}
	md.Table(markdown.TableSet{
		Header: []string{"Site", "Status", "Stage", "Records", "Score", "Grade", "Duration", "Sheet"},
		Rows:   rows,
	})
	md.PlainText("")

	if counts[tracker.StatusFailed] > 0 {
		md.H2("Failures")
		md.PlainText("")
		var items []string
		for _, r := range b.Results {
			if r.Status == tracker.StatusFailed {
				items = append(items, fmt.Sprintf("%s (%s): %s", r.Site, r.Stage, r.Reason()))
			}
		}
		md.BulletList(items...)
		md.PlainText("")
	}
	return md.Build()
}

func siteRow(r tracker.RunResult) []string {
	score, grade := "", ""
	if r.Status == tracker.StatusSuccess {
		score = strconv.FormatFloat(r.Score, 'f', 1, 64)
		grade = r.Grade
	}
	sheet := ""
	if r.SheetURL != "" {
		sheet = markdown.Link("open", r.SheetURL)
	}
	return []string{
		r.Site,
		string(r.Status),
		string(r.Stage),
		strconv.Itoa(r.Records),
		score,
		grade,
		tracker.FormatDuration(r.Duration),
		sheet,
	}
}

func tally(results []tracker.RunResult) map[tracker.RunStatus]int {
	out := make(map[tracker.RunStatus]int, 3)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
