package report

import "github.com/JakeFAU/a11y-tracker/internal/tracker"

func severityRank(severity string) int {
	switch severity {
	case tracker.SeverityMustFix:
		return 0
	case tracker.SeverityGoodToFix:
		return 1
	case tracker.SeverityNeedsReview:
		return 2
	default:
		return 3
	}
}

// Prioritize orders records mustFix, goodToFix, needsReview, then everything
// else, keeping input order inside each class, and keeps at most maxRecords.
// maxRecords <= 0 keeps everything. The input slice is not modified.
func Prioritize[T any](records []T, severity func(T) string, maxRecords int) []T {
	var classes [4][]T
	for _, rec := range records {
		rank := severityRank(severity(rec))
		classes[rank] = append(classes[rank], rec)
	}
	out := make([]T, 0, len(records))
	for _, class := range classes {
		out = append(out, class...)
	}
	if maxRecords > 0 && len(out) > maxRecords {
		out = out[:maxRecords]
	}
	return out
}
