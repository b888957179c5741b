// Package sheets publishes canonical records into dated spreadsheet tabs and
// keeps the Summary ledger. Remote access goes through the narrow Client
// interface; see the google and memory subpackages.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// ValueInput controls how the remote side interprets written cells.
type ValueInput string

// Supported value input options.
const (
	InputUserEntered ValueInput = "USER_ENTERED"
	InputRaw         ValueInput = "RAW"
)

// Client is the remote spreadsheet surface the publisher needs.
type Client interface {
	SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	// AddSheet creates a tab. A negative index appends it at the end.
	AddSheet(ctx context.Context, spreadsheetID, title string, index int) error
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
	// AppendValues writes rows after the last non-empty row of the table at rng.
	AppendValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input ValueInput) error
	GetValues(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
	UpdateValues(ctx context.Context, spreadsheetID, rng string, rows [][]any, input ValueInput) error
	CreateSpreadsheet(ctx context.Context, title string) (tracker.Spreadsheet, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying (bad request, missing
// permission, unknown spreadsheet).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Range renders an A1 range on a quoted sheet name.
func Range(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}

// SplitRange is the inverse of Range.
func SplitRange(rng string) (sheet, cells string, err error) {
	idx := strings.LastIndex(rng, "!")
	if idx < 0 {
		return "", "", fmt.Errorf("range %q has no sheet", rng)
	}
	sheet, cells = rng[:idx], rng[idx+1:]
	if len(sheet) >= 2 && strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	if sheet == "" || cells == "" {
		return "", "", fmt.Errorf("range %q is incomplete", rng)
	}
	return sheet, cells, nil
}
