package tracker

import (
	"time"
)

// CrawlType selects how the scanner discovers pages.
type CrawlType string

// Supported crawl types.
const (
	CrawlSitemap CrawlType = "sitemap"
	CrawlWebsite CrawlType = "crawl"
)

// ScanJob describes one site to scan. It is read-only for the duration of a run.
type ScanJob struct {
	SiteName        string
	TargetURL       string
	MaxPages        int
	Strategy        string
	CrawlType       CrawlType
	SheetID         string
	ExcludePatterns []string
}

// IssueRecord is one row of the scanner's CSV report.
type IssueRecord struct {
	URL             string
	AxeImpact       string
	Severity        string
	IssueID         string
	WCAGConformance string
	Context         string
	XPath           string
}

// Occurrences counts how often a record's keys appear in the full report.
type Occurrences struct {
	XPath    int
	Content  int
	Combined int
}

// CanonicalRecord is an IssueRecord with its deterministic derived fields.
type CanonicalRecord struct {
	IssueRecord
	HTMLFingerprint string
	ContentHash     string
	XPathHash       string
	WCAGFormatted   string
	// Occurrences is nil unless duplicate accounting is enabled.
	Occurrences *Occurrences
}

// Severity classes in publish priority order.
const (
	SeverityMustFix     = "mustFix"
	SeverityGoodToFix   = "goodToFix"
	SeverityNeedsReview = "needsReview"
)

// SummarySheet is the reserved ledger tab. It is never cleared or deleted.
const SummarySheet = "Summary"

// SheetDateLayout names dated tabs.
const SheetDateLayout = "2006-01-02"

// SheetTarget identifies the dated tab a run publishes into.
type SheetTarget struct {
	SpreadsheetID string
	SheetName     string
	Exists        bool
	Cleared       bool
}

// PublishMode selects how records land in the dated tab.
type PublishMode string

// Supported publish modes.
const (
	ModeRefresh PublishMode = "refresh"
	ModeAppend  PublishMode = "append"
)

// RunStatus is the coarse outcome of one site run.
type RunStatus string

// Run outcomes.
const (
	StatusSuccess       RunStatus = "success"
	StatusLockContended RunStatus = "lock_contended"
	StatusFailed        RunStatus = "failed"
)

// RunResult reports what happened to one site.
type RunResult struct {
	RunID     string
	Site      string
	TargetURL string
	Status    RunStatus
	// Stage is the last stage reached; on failure it is the stage that failed.
	Stage    Stage
	Err      error
	Records  int
	Total    int
	SheetID  string
	SheetURL string
	// SheetCreated is true when the spreadsheet was provisioned during this run.
	SheetCreated bool
	Score        float64
	Grade        string
	ArchiveURI   string
	StartedAt    time.Time
	Duration     time.Duration
}

// Reason returns the failure text or an empty string.
func (r RunResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// SpreadsheetURL returns the browser address of a Google spreadsheet.
func SpreadsheetURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://docs.google.com/spreadsheets/d/" + id + "/edit"
}
