package tracker

import (
	"context"
	"io"
	"time"
)

// Locker is the exclusive-run guard. TryAcquire returns ErrLockContended
// instead of waiting. Release is safe to call when nothing is held.
type Locker interface {
	TryAcquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Scanner runs the external scan for a job and returns once it exited cleanly.
type Scanner interface {
	Run(ctx context.Context, job ScanJob) (ScanOutput, error)
}

// ScanOutput describes a completed scanner invocation.
type ScanOutput struct {
	Attempts   int
	Duration   time.Duration
	ResultsDir string
	ReportPath string
}

// Canonicalizer turns a CSV report into canonical records.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, path string, maxRecords int) (Report, error)
}

// Report is the canonicalized view of one scan.
type Report struct {
	Records []CanonicalRecord
	// Total is the number of parsed rows before prioritization.
	Total int
	Score Score
}

// Score summarizes the full parsed report.
type Score struct {
	Critical int
	Serious  int
	Moderate int
	Minor    int
	URLs     int
	Value    float64
	Grade    string
}

// SheetPublisher writes canonical records into a spreadsheet.
type SheetPublisher interface {
	Publish(ctx context.Context, records []CanonicalRecord, spreadsheetID, label string, mode PublishMode) error
	MarkSummaryDate(ctx context.Context, spreadsheetID, date string) error
	CreateSpreadsheet(ctx context.Context, title string) (Spreadsheet, error)
}

// Spreadsheet identifies a remote spreadsheet.
type Spreadsheet struct {
	ID  string
	URL string
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes the fingerprint digest.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
