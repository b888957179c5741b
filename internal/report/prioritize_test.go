package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

func issues(pairs ...string) []tracker.IssueRecord {
	out := make([]tracker.IssueRecord, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, tracker.IssueRecord{IssueID: pairs[i], Severity: pairs[i+1]})
	}
	return out
}

func ids(records []tracker.IssueRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.IssueID
	}
	return out
}

func TestPrioritizeStableClasses(t *testing.T) {
	t.Parallel()

	in := issues(
		"r1", "needsReview",
		"g1", "goodToFix",
		"x1", "info",
		"m1", "mustFix",
		"g2", "goodToFix",
		"m2", "mustFix",
		"r2", "needsReview",
		"x2", "",
	)
	got := Prioritize(in, issueSeverity, 0)

	require.Equal(t, []string{"m1", "m2", "g1", "g2", "r1", "r2", "x1", "x2"}, ids(got))
	require.Equal(t, "r1", in[0].IssueID, "input must not be reordered")
}

func TestPrioritizeTruncates(t *testing.T) {
	t.Parallel()

	in := issues("g1", "goodToFix", "m1", "mustFix", "r1", "needsReview")
	require.Equal(t, []string{"m1", "g1"}, ids(Prioritize(in, issueSeverity, 2)))
	require.Len(t, Prioritize(in, issueSeverity, 10), 3)
	require.Empty(t, Prioritize(nil, issueSeverity, 5))
}

func TestPrioritizeOrderingProperty(t *testing.T) {
	t.Parallel()

	severities := []string{"mustFix", "goodToFix", "needsReview", "other"}
	var in []tracker.IssueRecord
	for i := 0; i < 200; i++ {
		in = append(in, tracker.IssueRecord{
			IssueID:  string(rune('a' + i%26)),
			Severity: severities[(i*7)%len(severities)],
			XPath:    string(rune(i)),
		})
	}
	got := Prioritize(in, issueSeverity, 0)
	require.Len(t, got, len(in))
	for i := 1; i < len(got); i++ {
		prev, cur := severityRank(got[i-1].Severity), severityRank(got[i].Severity)
		require.LessOrEqual(t, prev, cur)
		if prev == cur {
			require.Less(t, indexOf(in, got[i-1]), indexOf(in, got[i]), "within-class order must be stable")
		}
	}
}

func indexOf(records []tracker.IssueRecord, target tracker.IssueRecord) int {
	for i, r := range records {
		if r == target {
			return i
		}
	}
	return -1
}
