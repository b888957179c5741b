package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/hash"
	"github.com/JakeFAU/a11y-tracker/internal/orchestrator"
	"github.com/JakeFAU/a11y-tracker/internal/progress"
	pubmemory "github.com/JakeFAU/a11y-tracker/internal/publisher/memory"
	"github.com/JakeFAU/a11y-tracker/internal/report"
	"github.com/JakeFAU/a11y-tracker/internal/sheets"
	sheetsmemory "github.com/JakeFAU/a11y-tracker/internal/sheets/memory"
	blobmemory "github.com/JakeFAU/a11y-tracker/internal/storage/memory"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

const (
	runID       = "0192f3a0-7c1e-7000-8000-000000000001"
	reportRows  = "url,xpath,context,severity,wcagConformance,axeImpact,issueId\n"
	mustFixRow  = "https://a.example/,//div[1],<div title='x'>Hi</div>,mustFix,wcag143,serious,color-contrast\n"
	reviewRow   = "https://a.example/about,//img[1],<img src='a.png'>,needsReview,wcag111,minor,image-alt\n"
	sheetID     = "sheet-1"
	today       = "2026-10-15"
	notifyTopic = "a11y-runs"
)

type fakeLocker struct {
	acquireErr error
	acquires   int
	releases   int
	releaseErr error
}

func (l *fakeLocker) TryAcquire(context.Context) error {
	l.acquires++
	return l.acquireErr
}

func (l *fakeLocker) Release(ctx context.Context) error {
	l.releases++
	l.releaseErr = ctx.Err()
	return nil
}

type fakeScanner struct {
	out   tracker.ScanOutput
	err   error
	jobs  []tracker.ScanJob
	onRun func()
}

func (s *fakeScanner) Run(_ context.Context, job tracker.ScanJob) (tracker.ScanOutput, error) {
	s.jobs = append(s.jobs, job)
	if s.onRun != nil {
		s.onRun()
	}
	return s.out, s.err
}

type recorder struct {
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.events = append(r.events, evt)
}

func (r *recorder) stages() []tracker.Stage {
	out := make([]tracker.Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type fixedID string

func (f fixedID) NewID() (string, error) {
	return string(f), nil
}

type harness struct {
	orch     *orchestrator.Orchestrator
	locker   *fakeLocker
	scanner  *fakeScanner
	sheets   *sheetsmemory.Client
	archive  *blobmemory.BlobStore
	notifier *pubmemory.Publisher
	events   *recorder
	created  []tracker.Spreadsheet
}

func writeReport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newHarness(t *testing.T, cfg orchestrator.Config) *harness {
	t.Helper()
	h := &harness{
		locker:   &fakeLocker{},
		scanner:  &fakeScanner{out: tracker.ScanOutput{Attempts: 1, ReportPath: writeReport(t, reportRows+mustFixRow+reviewRow)}},
		sheets:   sheetsmemory.New(),
		archive:  blobmemory.NewBlobStore(),
		notifier: pubmemory.New(),
		events:   &recorder{},
	}
	h.sheets.Seed(sheetID, tracker.SummarySheet)

	hasher, err := hash.New(hash.MD5)
	require.NoError(t, err)
	canon, err := report.NewCanonicalizer(report.Options{
		Hasher:       hasher,
		PollInterval: time.Millisecond,
		WaitTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	pub, err := sheets.New(h.sheets, sheets.Config{MaxAttempts: 1}, nil)
	require.NoError(t, err)

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	orch, err := orchestrator.New(orchestrator.Deps{
		Locker:        h.locker,
		Scanner:       h.scanner,
		Canonicalizer: canon,
		Sheets:        pub,
		Archive:       h.archive,
		Notifier:      h.notifier,
		Events:        h.events,
		Clock:         &stepClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), step: time.Second},
		IDs:           fixedID(runID),
		OnSheetCreated: func(_ tracker.ScanJob, sheet tracker.Spreadsheet) error {
			h.created = append(h.created, sheet)
			return nil
		},
	}, cfg, nil)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func job(sheet string) tracker.ScanJob {
	return tracker.ScanJob{
		SiteName:  "Agency One",
		TargetURL: "https://a.example/",
		MaxPages:  100,
		CrawlType: tracker.CrawlSitemap,
		SheetID:   sheet,
	}
}

func TestRunSiteLockContendedSpawnsNoScan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{NotifyTopic: notifyTopic})
	h.locker.acquireErr = tracker.ErrLockContended

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusLockContended, res.Status)
	require.ErrorIs(t, res.Err, tracker.ErrLockContended)
	require.Empty(t, h.scanner.jobs)
	require.Empty(t, h.sheets.Calls())
	require.Zero(t, h.locker.releases)
	require.Empty(t, h.notifier.Messages())
	require.Len(t, h.events.events, 1)
	final := h.events.events[0]
	require.True(t, final.Final())
	require.Equal(t, tracker.StageIdle, final.Stage)
	require.NoError(t, final.Validate())
}

func TestRunSiteLockBackendErrorCountsAsContended(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	backendErr := errors.New("redis: connection refused")
	h.locker.acquireErr = backendErr

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusLockContended, res.Status)
	require.ErrorIs(t, res.Err, backendErr)
	require.Empty(t, h.scanner.jobs)
}

func TestRunSiteSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{NotifyTopic: notifyTopic, ArchivePrefix: "/raw/"})

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.NoError(t, res.Err)
	require.Equal(t, tracker.StatusSuccess, res.Status)
	require.Equal(t, tracker.StageUnlocked, res.Stage)
	require.Equal(t, runID, res.RunID)
	require.Equal(t, 2, res.Records)
	require.Equal(t, 2, res.Total)
	require.NotEmpty(t, res.Grade)
	require.Equal(t, tracker.SpreadsheetURL(sheetID), res.SheetURL)
	require.False(t, res.SheetCreated)
	require.Positive(t, res.Duration)
	require.Equal(t, 1, h.locker.releases)

	rows := h.sheets.Values(sheetID, today)
	require.Len(t, rows, 3)
	require.Equal(t, report.Header, rows[0])
	require.Equal(t, "mustFix", rows[1][2])
	require.Equal(t, [][]string{{today}}, h.sheets.Values(sheetID, tracker.SummarySheet))

	require.Equal(t, []tracker.Stage{
		tracker.StageLocked,
		tracker.StageScanning,
		tracker.StageScanSucceeded,
		tracker.StageCanonicalizing,
		tracker.StageCanonicalized,
		tracker.StagePublishing,
		tracker.StagePublished,
		tracker.StageUnlocked,
	}, h.events.stages())
	for _, evt := range h.events.events {
		require.NoError(t, evt.Validate())
	}
	final := h.events.events[len(h.events.events)-1]
	require.Equal(t, tracker.StatusSuccess, final.Status)
	require.Equal(t, res.Duration, final.Dur)
	require.EqualValues(t, 2, final.Records)

	key := "raw/agency-one/" + today + "/" + runID + ".csv"
	obj, ok := h.archive.Get(key)
	require.True(t, ok)
	require.Equal(t, "text/csv", obj.ContentType)
	require.Equal(t, "memory://"+key, res.ArchiveURI)

	msgs := h.notifier.Topic(notifyTopic)
	require.Len(t, msgs, 1)
	note, ok := msgs[0].Payload.(tracker.RunNotification)
	require.True(t, ok)
	require.Equal(t, tracker.StatusSuccess, note.Status)
	require.Equal(t, runID, note.RunID)
}

func TestRunSiteRepeatedRefreshIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})

	first := h.orch.RunSite(context.Background(), job(sheetID))
	require.Equal(t, tracker.StatusSuccess, first.Status)
	snapshot := h.sheets.Values(sheetID, today)

	second := h.orch.RunSite(context.Background(), job(sheetID))
	require.Equal(t, tracker.StatusSuccess, second.Status)
	require.Equal(t, snapshot, h.sheets.Values(sheetID, today))
	require.Equal(t, [][]string{{today}}, h.sheets.Values(sheetID, tracker.SummarySheet))
}

func TestRunSiteScanFailureReleasesLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{NotifyTopic: notifyTopic})
	h.scanner.out = tracker.ScanOutput{Attempts: 3}
	h.scanner.err = errors.Join(tracker.ErrScanFailed, tracker.ErrScanTimedOut)

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusFailed, res.Status)
	require.Equal(t, tracker.StageScanFailed, res.Stage)
	require.ErrorIs(t, res.Err, tracker.ErrScanTimedOut)
	var stageErr *tracker.StageError
	require.ErrorAs(t, res.Err, &stageErr)
	require.Equal(t, "Agency One", stageErr.Site)
	require.Equal(t, 1, h.locker.releases)
	require.Empty(t, h.sheets.Calls())

	final := h.events.events[len(h.events.events)-1]
	require.Equal(t, tracker.StatusFailed, final.Status)
	require.Equal(t, tracker.StageScanFailed, final.FailedStage)
	require.Equal(t, 3, final.Attempts)
	require.NoError(t, final.Validate())

	msgs := h.notifier.Topic(notifyTopic)
	require.Len(t, msgs, 1)
	note, ok := msgs[0].Payload.(tracker.RunNotification)
	require.True(t, ok)
	require.Contains(t, note.Reason, "scan timed out")
}

func TestRunSiteMissingResultsIsCanonicalizeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	h.scanner.out = tracker.ScanOutput{Attempts: 1}
	h.scanner.err = tracker.ErrReportMissing

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StageCanonicalizeFailed, res.Stage)
	require.ErrorIs(t, res.Err, tracker.ErrReportMissing)
	require.Equal(t, 1, h.locker.releases)
}

func TestRunSiteUnreadableReport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	h.scanner.out.ReportPath = writeReport(t, "not,a,report\n")

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusFailed, res.Status)
	require.Equal(t, tracker.StageCanonicalizeFailed, res.Stage)
	require.ErrorIs(t, res.Err, tracker.ErrReportUnreadable)
	require.Empty(t, h.archive.Keys())
	require.Zero(t, h.sheets.CallCount(sheetsmemory.OpAppend))
}

func TestRunSitePublishFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	h.sheets.FailNext(sheetsmemory.OpAppend, sheets.Permanent(errors.New("forbidden")))

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusFailed, res.Status)
	require.Equal(t, tracker.StagePublishFailed, res.Stage)
	require.ErrorIs(t, res.Err, tracker.ErrSheetAPI)
	require.Equal(t, 1, h.locker.releases)
	require.Empty(t, h.sheets.Values(sheetID, tracker.SummarySheet))
}

func TestRunSiteProvisionsMissingSpreadsheet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	var scanned tracker.ScanJob
	h.scanner.onRun = func() { scanned = h.scanner.jobs[0] }

	res := h.orch.RunSite(context.Background(), job(""))

	require.Equal(t, tracker.StatusSuccess, res.Status)
	require.True(t, res.SheetCreated)
	require.NotEmpty(t, res.SheetID)
	require.Equal(t, res.SheetID, scanned.SheetID)
	require.Len(t, h.created, 1)
	require.Equal(t, res.SheetID, h.created[0].ID)
	require.Len(t, h.sheets.Values(res.SheetID, today), 3)
	require.Equal(t, tracker.StageProvisioning, h.events.stages()[1])
}

func TestRunSiteProvisionFailureSkipsScan(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	h.sheets.FailNext(sheetsmemory.OpCreate, sheets.Permanent(errors.New("quota")))

	res := h.orch.RunSite(context.Background(), job(""))

	require.Equal(t, tracker.StatusFailed, res.Status)
	require.Equal(t, tracker.StagePublishFailed, res.Stage)
	require.Empty(t, h.scanner.jobs)
	require.Equal(t, 1, h.locker.releases)
}

func TestRunSiteNotificationFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{NotifyTopic: notifyTopic})
	h.notifier.FailWith(errors.New("pubsub down"))

	res := h.orch.RunSite(context.Background(), job(sheetID))

	require.Equal(t, tracker.StatusSuccess, res.Status)
}

func TestRunSiteReleasesAfterCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	h.scanner.onRun = cancel
	h.scanner.err = errors.Join(tracker.ErrScanFailed, context.Canceled)

	res := h.orch.RunSite(ctx, job(sheetID))

	require.Equal(t, tracker.StatusFailed, res.Status)
	require.Equal(t, 1, h.locker.releases)
	require.NoError(t, h.locker.releaseErr)
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{})
	good := h.scanner.out
	calls := 0
	h.scanner.onRun = func() {
		calls++
		if calls == 1 {
			h.scanner.out, h.scanner.err = tracker.ScanOutput{Attempts: 2}, tracker.ErrScanFailed
			return
		}
		h.scanner.out, h.scanner.err = good, nil
	}

	other := job(sheetID)
	other.SiteName = "Agency Two"
	results := h.orch.RunBatch(context.Background(), []tracker.ScanJob{job(sheetID), other})

	require.Len(t, results, 2)
	require.Equal(t, tracker.StatusFailed, results[0].Status)
	require.Equal(t, tracker.StatusSuccess, results[1].Status)
	require.Equal(t, 2, h.locker.releases)
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, orchestrator.Config{Pause: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	h.scanner.onRun = cancel

	results := h.orch.RunBatch(ctx, []tracker.ScanJob{job(sheetID), job(sheetID), job(sheetID)})

	require.Len(t, results, 1)
	require.Len(t, h.scanner.jobs, 1)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := orchestrator.New(orchestrator.Deps{}, orchestrator.Config{}, nil)
	require.Error(t, err)

	_, err = orchestrator.New(orchestrator.Deps{
		Locker:        &fakeLocker{},
		Scanner:       &fakeScanner{},
		Canonicalizer: stubCanon{},
		Sheets:        stubSheets{},
		Clock:         &stepClock{},
		IDs:           fixedID(runID),
	}, orchestrator.Config{Mode: "sideways"}, nil)
	require.ErrorContains(t, err, "publish mode")
}

func TestSlug(t *testing.T) {
	t.Parallel()

	require.Equal(t, "agency-one", orchestrator.Slug("Agency One"))
	require.Equal(t, "dept-of-x-y", orchestrator.Slug("  Dept. of X / Y  "))
	require.Equal(t, "site", orchestrator.Slug("***"))
}

type stubCanon struct{}

func (stubCanon) Canonicalize(context.Context, string, int) (tracker.Report, error) {
	return tracker.Report{}, nil
}

type stubSheets struct{}

func (stubSheets) Publish(context.Context, []tracker.CanonicalRecord, string, string, tracker.PublishMode) error {
	return nil
}

func (stubSheets) MarkSummaryDate(context.Context, string, string) error {
	return nil
}

func (stubSheets) CreateSpreadsheet(context.Context, string) (tracker.Spreadsheet, error) {
	return tracker.Spreadsheet{}, nil
}
