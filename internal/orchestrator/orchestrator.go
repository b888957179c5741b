// Package orchestrator drives one site at a time through
// lock, scan, canonicalize, publish and release.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/progress"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Config controls Orchestrator behavior.
type Config struct {
	// Mode picks how records land in the dated tab.
	Mode tracker.PublishMode
	// MaxRecords caps the published rows per run. Zero means no cap.
	MaxRecords int
	// Pause is waited between sites in a batch.
	Pause time.Duration
	// NotifyTopic receives a RunNotification per finished run when set.
	NotifyTopic string
	// ArchivePrefix is prepended to archived report keys.
	ArchivePrefix string
	// ReleaseTimeout bounds lock release, which runs even after cancellation.
	ReleaseTimeout time.Duration
	// Location decides the calendar date used for tab names.
	Location *time.Location
}

// SheetCreatedFunc is told about spreadsheets provisioned during a run so the
// caller can persist them.
type SheetCreatedFunc func(job tracker.ScanJob, sheet tracker.Spreadsheet) error

// Deps are the collaborators of an Orchestrator. Archive, Notifier, Events and
// OnSheetCreated are optional.
type Deps struct {
	Locker         tracker.Locker
	Scanner        tracker.Scanner
	Canonicalizer  tracker.Canonicalizer
	Sheets         tracker.SheetPublisher
	Archive        tracker.BlobStore
	Notifier       tracker.Publisher
	Events         progress.Emitter
	Clock          tracker.Clock
	IDs            tracker.IDGenerator
	OnSheetCreated SheetCreatedFunc
}

// Orchestrator runs the per-site pipeline.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and applies defaults to cfg.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Locker == nil:
		return nil, errors.New("locker is required")
	case deps.Scanner == nil:
		return nil, errors.New("scanner is required")
	case deps.Canonicalizer == nil:
		return nil, errors.New("canonicalizer is required")
	case deps.Sheets == nil:
		return nil, errors.New("sheet publisher is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Discard
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = tracker.ModeRefresh
	case tracker.ModeRefresh, tracker.ModeAppend:
	default:
		return nil, fmt.Errorf("unknown publish mode %q", cfg.Mode)
	}
	if cfg.MaxRecords < 0 {
		return nil, errors.New("max records must be >= 0")
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// run is the mutable state of one RunSite call.
type run struct {
	job     tracker.ScanJob
	res     tracker.RunResult
	id      [16]byte
	entered time.Time
	attempt int
	logger  *zap.Logger
}

// RunSite takes job through the pipeline and reports the outcome. It never
// returns early without releasing the lock it acquired.
func (o *Orchestrator) RunSite(ctx context.Context, job tracker.ScanJob) tracker.RunResult {
	start := o.deps.Clock.Now()
	r := &run{
		job:     job,
		entered: start,
		res: tracker.RunResult{
			Site:      job.SiteName,
			TargetURL: job.TargetURL,
			Stage:     tracker.StageIdle,
			SheetID:   job.SheetID,
			SheetURL:  tracker.SpreadsheetURL(job.SheetID),
			StartedAt: start,
		},
	}
	r.res.RunID, r.id = o.newRunID()
	r.logger = o.logger.With(zap.String("site", job.SiteName), zap.String("run_id", r.res.RunID))

	if err := o.deps.Locker.TryAcquire(ctx); err != nil {
		if !errors.Is(err, tracker.ErrLockContended) {
			r.logger.Error("lock acquire failed", zap.Error(err))
			err = fmt.Errorf("%w: %w", tracker.ErrLockContended, err)
		} else {
			r.logger.Warn("another run holds the lock, skipping site")
		}
		r.res.Status = tracker.StatusLockContended
		r.res.Err = &tracker.StageError{Stage: tracker.StageIdle, Site: job.SiteName, Err: err}
		return o.finish(r)
	}

	if err := o.locked(ctx, r); err != nil {
		var stageErr *tracker.StageError
		if errors.As(err, &stageErr) {
			r.res.Stage = stageErr.Stage
		}
		r.res.Status = tracker.StatusFailed
		r.res.Err = err
		r.logger.Error("site run failed", zap.String("stage", string(r.res.Stage)), zap.Error(err))
	} else {
		r.res.Status = tracker.StatusSuccess
		r.res.Stage = tracker.StageUnlocked
	}
	res := o.finish(r)
	o.notify(ctx, r.logger, res)
	return res
}

// RunBatch runs jobs one after another. A failed site does not stop the
// batch; only ctx cancellation does.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []tracker.ScanJob) []tracker.RunResult {
	results := make([]tracker.RunResult, 0, len(jobs))
	for i, job := range jobs {
		if ctx.Err() != nil {
			o.logger.Warn("batch canceled", zap.Int("remaining", len(jobs)-i))
			break
		}
		if i > 0 && o.cfg.Pause > 0 {
			o.logger.Info("pausing between sites", zap.Duration("pause", o.cfg.Pause))
			if err := sleep(ctx, o.cfg.Pause); err != nil {
				o.logger.Warn("batch canceled", zap.Int("remaining", len(jobs)-i))
				break
			}
		}
		results = append(results, o.RunSite(ctx, job))
	}
	return results
}

func (o *Orchestrator) locked(ctx context.Context, r *run) error {
	defer o.release(ctx, r.logger)
	o.enter(r, tracker.StageLocked)
	return o.pipeline(ctx, r)
}

func (o *Orchestrator) pipeline(ctx context.Context, r *run) error {
	if r.job.SheetID == "" {
		o.enter(r, tracker.StageProvisioning)
		if err := o.provision(ctx, r); err != nil {
			return o.fail(r, tracker.StagePublishFailed, err)
		}
	}

	o.enter(r, tracker.StageScanning)
	out, err := o.deps.Scanner.Run(ctx, r.job)
	r.attempt = out.Attempts
	if err != nil {
		if errors.Is(err, tracker.ErrScanFailed) {
			return o.fail(r, tracker.StageScanFailed, err)
		}
		// The scanner exited cleanly but its report could not be located.
		o.enter(r, tracker.StageScanSucceeded)
		return o.fail(r, tracker.StageCanonicalizeFailed, err)
	}
	r.logger.Info("scan complete",
		zap.Int("attempts", out.Attempts),
		zap.String("duration", tracker.FormatDuration(out.Duration)),
		zap.String("report", out.ReportPath),
	)
	o.enter(r, tracker.StageScanSucceeded)

	o.enter(r, tracker.StageCanonicalizing)
	rep, err := o.deps.Canonicalizer.Canonicalize(ctx, out.ReportPath, o.cfg.MaxRecords)
	if err != nil {
		return o.fail(r, tracker.StageCanonicalizeFailed, err)
	}
	r.res.Records = len(rep.Records)
	r.res.Total = rep.Total
	r.res.Score = rep.Score.Value
	r.res.Grade = rep.Score.Grade
	o.enter(r, tracker.StageCanonicalized)
	o.archive(ctx, r, out.ReportPath)

	o.enter(r, tracker.StagePublishing)
	label := r.res.StartedAt.In(o.cfg.Location).Format(tracker.SheetDateLayout)
	if err := o.deps.Sheets.Publish(ctx, rep.Records, r.job.SheetID, label, o.cfg.Mode); err != nil {
		return o.fail(r, tracker.StagePublishFailed, err)
	}
	if err := o.deps.Sheets.MarkSummaryDate(ctx, r.job.SheetID, label); err != nil {
		return o.fail(r, tracker.StagePublishFailed, err)
	}
	o.enter(r, tracker.StagePublished)
	r.logger.Info("report published",
		zap.String("sheet", label),
		zap.Int("records", r.res.Records),
		zap.Int("total", r.res.Total),
		zap.Float64("score", r.res.Score),
		zap.String("grade", r.res.Grade),
	)
	return nil
}

func (o *Orchestrator) provision(ctx context.Context, r *run) error {
	sheet, err := o.deps.Sheets.CreateSpreadsheet(ctx, r.job.SiteName)
	if err != nil {
		return fmt.Errorf("create spreadsheet: %w", err)
	}
	r.job.SheetID = sheet.ID
	r.res.SheetID = sheet.ID
	r.res.SheetURL = sheet.URL
	if r.res.SheetURL == "" {
		r.res.SheetURL = tracker.SpreadsheetURL(sheet.ID)
	}
	r.res.SheetCreated = true
	r.logger.Info("spreadsheet created", zap.String("sheet_id", sheet.ID), zap.String("sheet_url", r.res.SheetURL))
	if o.deps.OnSheetCreated != nil {
		if err := o.deps.OnSheetCreated(r.job, sheet); err != nil {
			r.logger.Error("record new spreadsheet failed", zap.String("sheet_id", sheet.ID), zap.Error(err))
		}
	}
	return nil
}

// archive stores the raw report. Failures are logged and never fail the run.
func (o *Orchestrator) archive(ctx context.Context, r *run, reportPath string) {
	if o.deps.Archive == nil {
		return
	}
	f, err := os.Open(reportPath)
	if err != nil {
		r.logger.Warn("open report for archive failed", zap.Error(err))
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			r.logger.Debug("close archived report", zap.Error(err))
		}
	}()
	uri, err := o.deps.Archive.PutObject(ctx, o.archiveKey(r), "text/csv", f)
	if err != nil {
		r.logger.Warn("archive report failed", zap.Error(err))
		return
	}
	r.res.ArchiveURI = uri
	r.logger.Debug("report archived", zap.String("uri", uri))
}

func (o *Orchestrator) archiveKey(r *run) string {
	day := r.res.StartedAt.In(o.cfg.Location).Format(tracker.SheetDateLayout)
	key := path.Join(Slug(r.job.SiteName), day, r.res.RunID+".csv")
	prefix := strings.Trim(o.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func (o *Orchestrator) release(ctx context.Context, logger *zap.Logger) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ReleaseTimeout)
	defer cancel()
	if err := o.deps.Locker.Release(relCtx); err != nil {
		logger.Error("lock release failed", zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *zap.Logger, res tracker.RunResult) {
	if o.deps.Notifier == nil || o.cfg.NotifyTopic == "" {
		return
	}
	msgID, err := o.deps.Notifier.Publish(ctx, o.cfg.NotifyTopic, tracker.NewRunNotification(res))
	if err != nil {
		logger.Warn("run notification failed", zap.String("topic", o.cfg.NotifyTopic), zap.Error(err))
		return
	}
	logger.Debug("run notification sent", zap.String("topic", o.cfg.NotifyTopic), zap.String("message_id", msgID))
}

// enter records a transition and emits its event.
func (o *Orchestrator) enter(r *run, stage tracker.Stage) {
	now := o.deps.Clock.Now()
	evt := o.event(r, stage, now)
	evt.Dur = nonNegative(now.Sub(r.entered))
	r.entered = now
	r.res.Stage = stage
	r.logger.Debug("stage entered", zap.String("stage", string(stage)))
	o.deps.Events.Emit(evt)
}

func (o *Orchestrator) fail(r *run, stage tracker.Stage, err error) error {
	o.enter(r, stage)
	return &tracker.StageError{Stage: stage, Site: r.job.SiteName, Err: err}
}

// finish fills the duration and emits the closing event.
func (o *Orchestrator) finish(r *run) tracker.RunResult {
	now := o.deps.Clock.Now()
	r.res.Duration = nonNegative(now.Sub(r.res.StartedAt))

	stage := tracker.StageUnlocked
	if r.res.Status == tracker.StatusLockContended {
		stage = tracker.StageIdle
	}
	evt := o.event(r, stage, now)
	evt.Status = r.res.Status
	evt.Dur = r.res.Duration
	if r.res.Status == tracker.StatusFailed {
		evt.FailedStage = r.res.Stage
	}
	if r.res.Err != nil {
		evt.Note = r.res.Err.Error()
	}
	o.deps.Events.Emit(evt)

	fields := []zap.Field{
		zap.String("status", string(r.res.Status)),
		zap.String("duration", tracker.FormatDuration(r.res.Duration)),
	}
	if r.res.Status == tracker.StatusSuccess {
		fields = append(fields, zap.Int("records", r.res.Records), zap.String("sheet_url", r.res.SheetURL))
	}
	r.logger.Info("site run finished", fields...)
	return r.res
}

func (o *Orchestrator) event(r *run, stage tracker.Stage, now time.Time) progress.Event {
	return progress.Event{
		RunID:    r.id,
		TS:       now.UTC(),
		Stage:    stage,
		Site:     r.job.SiteName,
		URL:      r.job.TargetURL,
		Records:  int64(r.res.Records),
		Total:    int64(r.res.Total),
		Attempts: r.attempt,
		Score:    r.res.Score,
		SheetURL: r.res.SheetURL,
	}
}

// newRunID returns the generated id and its 16-byte form. Ids that are not
// UUIDs are mapped onto a name-based UUID so events still carry a stable key.
func (o *Orchestrator) newRunID() (string, [16]byte) {
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("generate run id failed, using random id", zap.Error(err))
		u := uuid.New()
		return u.String(), progress.UUIDToBytes(u)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return id, progress.UUIDToBytes(u)
}

// Slug lowercases name and replaces everything but letters and digits with
// single dashes.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "site"
	}
	return s
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
