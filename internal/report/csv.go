package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Required report columns. Header names are case-sensitive.
const (
	colURL             = "url"
	colAxeImpact       = "axeImpact"
	colSeverity        = "severity"
	colIssueID         = "issueId"
	colWCAGConformance = "wcagConformance"
	colContext         = "context"
	colXPath           = "xpath"
)

var requiredColumns = []string{
	colURL, colAxeImpact, colSeverity, colIssueID, colWCAGConformance, colContext, colXPath,
}

// ParseCSV reads scanner rows. A missing header, a missing required column
// or a malformed row yields an error wrapping tracker.ErrReportUnreadable.
// Rows whose fields are all empty are skipped. Extra columns are ignored.
func ParseCSV(r io.Reader) ([]tracker.IssueRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty report: %w", tracker.ErrReportUnreadable)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w: %w", tracker.ErrReportUnreadable, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %s: %w", strings.Join(missing, ", "), tracker.ErrReportUnreadable)
	}

	var records []tracker.IssueRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w: %w", tracker.ErrReportUnreadable, err)
		}
		if blankRow(row) {
			continue
		}
		field := func(col string) string {
			return strings.TrimSpace(row[index[col]])
		}
		records = append(records, tracker.IssueRecord{
			URL:             field(colURL),
			AxeImpact:       field(colAxeImpact),
			Severity:        field(colSeverity),
			IssueID:         field(colIssueID),
			WCAGConformance: field(colWCAGConformance),
			Context:         field(colContext),
			XPath:           field(colXPath),
		})
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
