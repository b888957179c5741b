package sheets

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/metrics"
	"github.com/JakeFAU/a11y-tracker/internal/report"
	"github.com/JakeFAU/a11y-tracker/internal/retry"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Config controls batching and retries.
type Config struct {
	// BatchSize caps rows per append call.
	BatchSize int
	// MaxAttempts, BackoffInitial and BackoffMax drive per-call retries.
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// CallTimeout bounds each remote call.
	CallTimeout time.Duration
	// IncludeCounts adds the duplicate-count columns.
	IncludeCounts bool
	// DatedSheetIndex positions new dated tabs; negative appends them.
	// Zero puts the newest day first.
	DatedSheetIndex int
	// Limiter, when set, is consulted before every call attempt.
	Limiter Limiter
}

// Limiter throttles calls by class ("read" or "write").
type Limiter interface {
	Wait(ctx context.Context, class string) error
}

const defaultBatchSize = 500

// Publisher implements tracker.SheetPublisher on top of a Client.
type Publisher struct {
	client Client
	cfg    Config
	logger *zap.Logger
}

// New returns a Publisher.
func New(client Client, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("sheets client is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, cfg: cfg, logger: logger}, nil
}

// Publish writes records into the tab named label. Refresh mode clears the
// tab first so repeated publishes of the same records converge on the same
// content. Append mode adds rows and writes the header only into an empty
// tab. Rows go out in BatchSize chunks, each retried on its own; chunks
// appended before a failure stay in place.
func (p *Publisher) Publish(
	ctx context.Context,
	records []tracker.CanonicalRecord,
	spreadsheetID, label string,
	mode tracker.PublishMode,
) error {
	if spreadsheetID == "" {
		return errors.New("spreadsheet id is required")
	}
	if label == "" {
		return errors.New("sheet label is required")
	}
	if label == tracker.SummarySheet {
		return fmt.Errorf("publish into %q: %w", label, tracker.ErrReservedSheet)
	}
	if mode != tracker.ModeRefresh && mode != tracker.ModeAppend {
		return fmt.Errorf("unknown publish mode %q", mode)
	}

	target, err := p.EnsureSheet(ctx, spreadsheetID, label, p.cfg.DatedSheetIndex)
	if err != nil {
		return err
	}
	logger := p.logger.With(
		zap.String("spreadsheet_id", spreadsheetID),
		zap.String("sheet", label),
		zap.String("mode", string(mode)),
	)

	writeHeader := true
	switch mode {
	case tracker.ModeRefresh:
		if err := p.call(ctx, "clear", func(ctx context.Context) error {
			return p.client.ClearValues(ctx, spreadsheetID, Range(label, "A1:Z"))
		}); err != nil {
			return err
		}
		target.Cleared = true
	case tracker.ModeAppend:
		if target.Exists {
			empty, err := p.firstRowEmpty(ctx, spreadsheetID, label)
			if err != nil {
				return err
			}
			writeHeader = empty
		}
	}

	rows := make([][]any, 0, len(records)+1)
	if writeHeader {
		rows = append(rows, toCells(report.Columns(p.cfg.IncludeCounts)))
	}
	for _, rec := range records {
		rows = append(rows, toCells(report.Row(rec, p.cfg.IncludeCounts)))
	}

	batches := 0
	for batch := range slices.Chunk(rows, p.cfg.BatchSize) {
		batches++
		n := batches
		if err := p.call(ctx, "append", func(ctx context.Context) error {
			return p.client.AppendValues(ctx, spreadsheetID, Range(label, "A1"), batch, InputRaw)
		}); err != nil {
			return fmt.Errorf("batch %d: %w", n, err)
		}
		logger.Debug("batch appended", zap.Int("batch", n), zap.Int("rows", len(batch)))
	}
	metrics.AddReportRows("published", len(records))
	logger.Info("records published",
		zap.Int("records", len(records)),
		zap.Int("batches", batches),
		zap.Bool("header", writeHeader),
		zap.Bool("sheet_created", !target.Exists),
	)
	return nil
}

// EnsureSheet creates the tab when it is missing, at index or at the end when
// index is negative or past the last tab. The returned target has Exists set
// when the tab was already there.
func (p *Publisher) EnsureSheet(ctx context.Context, spreadsheetID, title string, index int) (tracker.SheetTarget, error) {
	target := tracker.SheetTarget{SpreadsheetID: spreadsheetID, SheetName: title}
	var titles []string
	if err := p.call(ctx, "get", func(ctx context.Context) error {
		var err error
		titles, err = p.client.SheetTitles(ctx, spreadsheetID)
		return err
	}); err != nil {
		return target, err
	}
	if slices.Contains(titles, title) {
		target.Exists = true
		return target, nil
	}
	if index > len(titles) {
		index = -1
	}
	if err := p.call(ctx, "add_sheet", func(ctx context.Context) error {
		return p.client.AddSheet(ctx, spreadsheetID, title, index)
	}); err != nil {
		return target, err
	}
	p.logger.Info("sheet created", zap.String("spreadsheet_id", spreadsheetID), zap.String("sheet", title))
	return target, nil
}

// MarkSummaryDate records date in column A of the Summary tab unless it is
// already there. It writes RAW so the stored text reads back unchanged.
// Safe to call repeatedly; concurrent callers on one spreadsheet may race.
func (p *Publisher) MarkSummaryDate(ctx context.Context, spreadsheetID, date string) error {
	if spreadsheetID == "" {
		return errors.New("spreadsheet id is required")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return errors.New("summary date is required")
	}
	if _, err := p.EnsureSheet(ctx, spreadsheetID, tracker.SummarySheet, -1); err != nil {
		return err
	}
	var values [][]any
	if err := p.call(ctx, "get", func(ctx context.Context) error {
		var err error
		values, err = p.client.GetValues(ctx, spreadsheetID, Range(tracker.SummarySheet, "A:A"))
		return err
	}); err != nil {
		return err
	}
	for _, row := range values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == date {
			p.logger.Debug("summary date already recorded", zap.String("date", date))
			return nil
		}
	}
	cell := "A" + strconv.Itoa(len(values)+1)
	if err := p.call(ctx, "update", func(ctx context.Context) error {
		return p.client.UpdateValues(ctx, spreadsheetID, Range(tracker.SummarySheet, cell), [][]any{{date}}, InputRaw)
	}); err != nil {
		return err
	}
	p.logger.Info("summary date recorded", zap.String("spreadsheet_id", spreadsheetID), zap.String("cell", cell))
	return nil
}

// CreateSpreadsheet provisions a new spreadsheet.
func (p *Publisher) CreateSpreadsheet(ctx context.Context, title string) (tracker.Spreadsheet, error) {
	var out tracker.Spreadsheet
	err := p.call(ctx, "create", func(ctx context.Context) error {
		var err error
		out, err = p.client.CreateSpreadsheet(ctx, title)
		return err
	})
	return out, err
}

func (p *Publisher) firstRowEmpty(ctx context.Context, spreadsheetID, label string) (bool, error) {
	var values [][]any
	if err := p.call(ctx, "get", func(ctx context.Context) error {
		var err error
		values, err = p.client.GetValues(ctx, spreadsheetID, Range(label, "A1:Z1"))
		return err
	}); err != nil {
		return false, err
	}
	for _, row := range values {
		for _, cell := range row {
			if strings.TrimSpace(fmt.Sprint(cell)) != "" {
				return false, nil
			}
		}
	}
	return true, nil
}

// call runs one remote operation with retries and tags exhausted failures
// with tracker.ErrSheetAPI.
func (p *Publisher) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: p.cfg.MaxAttempts,
		Backoff:     retry.Exponential(p.cfg.BackoffInitial, p.cfg.BackoffMax),
		Timeout:     p.cfg.CallTimeout,
		Retryable: func(err error) bool {
			return !IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			p.logger.Warn("sheets call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context, _ int) error {
		if p.cfg.Limiter != nil {
			if err := p.cfg.Limiter.Wait(ctx, callClass(op)); err != nil {
				return err
			}
		}
		err := fn(ctx)
		metrics.ObserveSheetsCall(op, err)
		return err
	})
	if err != nil {
		return fmt.Errorf("sheets %s: %w: %w", op, tracker.ErrSheetAPI, err)
	}
	return nil
}

func callClass(op string) string {
	if op == "get" {
		return "read"
	}
	return "write"
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
