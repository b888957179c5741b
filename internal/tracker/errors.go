package tracker

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Callers match with errors.Is.
var (
	// ErrLockContended means another run holds the lock. Nothing was touched.
	ErrLockContended = errors.New("run lock already held")
	// ErrScanTimedOut means the scanner was killed after its wall-clock limit.
	ErrScanTimedOut = errors.New("scan timed out")
	// ErrScanProcessFailed means the scanner exited non-zero.
	ErrScanProcessFailed = errors.New("scan process failed")
	// ErrScanFailed means every scan attempt failed.
	ErrScanFailed = errors.New("scan failed")
	// ErrReportMissing means no report appeared within the poll window.
	ErrReportMissing = errors.New("report missing")
	// ErrReportUnreadable means the report exists but cannot be parsed.
	ErrReportUnreadable = errors.New("report unreadable")
	// ErrSheetAPI wraps remote spreadsheet failures that survived retries.
	ErrSheetAPI = errors.New("sheet api error")
	// ErrReservedSheet rejects writes that would touch the Summary tab.
	ErrReservedSheet = errors.New("reserved sheet")
)

// StageError ties a pipeline failure to the stage it happened in.
type StageError struct {
	Stage Stage
	Site  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Site, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
