package report

import (
	"strconv"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Header is the fixed published column layout.
var Header = []string{
	"URL",
	"axe Impact",
	"Severity",
	"Issue ID",
	"WCAG Conformance",
	"Context",
	"HTML Fingerprint",
	"XPath",
	"Hash Context",
	"Hash xPath",
}

// CountHeader is appended to Header when duplicate accounting is on.
var CountHeader = []string{"XPath Count", "Content Count", "Combined Count"}

// Columns returns the header for the given layout.
func Columns(withCounts bool) []string {
	cols := append([]string(nil), Header...)
	if withCounts {
		cols = append(cols, CountHeader...)
	}
	return cols
}

// Row renders one record in Columns order. Count columns are present only
// when withCounts is set; a record without counts leaves them empty.
func Row(rec tracker.CanonicalRecord, withCounts bool) []string {
	row := []string{
		rec.URL,
		rec.AxeImpact,
		rec.Severity,
		rec.IssueID,
		rec.WCAGFormatted,
		rec.Context,
		rec.HTMLFingerprint,
		rec.XPath,
		rec.ContentHash,
		rec.XPathHash,
	}
	if withCounts {
		if rec.Occurrences == nil {
			row = append(row, "", "", "")
		} else {
			row = append(row,
				strconv.Itoa(rec.Occurrences.XPath),
				strconv.Itoa(rec.Occurrences.Content),
				strconv.Itoa(rec.Occurrences.Combined),
			)
		}
	}
	return row
}
