package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/metrics"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Options configures a Canonicalizer.
type Options struct {
	// Hasher digests fingerprint inputs. Required.
	Hasher tracker.Hasher
	// PollInterval and WaitTimeout bound the wait for the report file.
	PollInterval time.Duration
	WaitTimeout  time.Duration
	// CountDuplicates attaches occurrence counts to every record.
	CountDuplicates bool
	Logger          *zap.Logger
}

// Canonicalizer implements tracker.Canonicalizer.
type Canonicalizer struct {
	opts   Options
	logger *zap.Logger
}

// NewCanonicalizer validates opts.
func NewCanonicalizer(opts Options) (*Canonicalizer, error) {
	if opts.Hasher == nil {
		return nil, errors.New("hasher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canonicalizer{opts: opts, logger: logger}, nil
}

// Canonicalize waits for the report, parses it and returns prioritized
// canonical records, at most maxRecords of them. Score and duplicate counts
// always cover every parsed row.
func (c *Canonicalizer) Canonicalize(ctx context.Context, path string, maxRecords int) (tracker.Report, error) {
	if err := WaitForFile(ctx, path, c.opts.PollInterval, c.opts.WaitTimeout); err != nil {
		return tracker.Report{}, err
	}
	f, err := os.Open(path) //nolint:gosec // path comes from the results directory
	if err != nil {
		return tracker.Report{}, fmt.Errorf("open report: %w: %w", tracker.ErrReportUnreadable, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			c.logger.Warn("close report failed", zap.String("path", path), zap.Error(cerr))
		}
	}()

	issues, err := ParseCSV(f)
	if err != nil {
		return tracker.Report{}, fmt.Errorf("parse %s: %w", path, err)
	}
	out := c.Build(issues, maxRecords)
	metrics.AddReportRows("parsed", out.Total)
	metrics.AddReportRows("kept", len(out.Records))
	c.logger.Info("report canonicalized",
		zap.String("path", path),
		zap.Int("parsed", out.Total),
		zap.Int("kept", len(out.Records)),
		zap.Float64("score", out.Score.Value),
		zap.String("grade", out.Score.Grade),
	)
	return out, nil
}

// Build canonicalizes already-parsed rows.
func (c *Canonicalizer) Build(issues []tracker.IssueRecord, maxRecords int) tracker.Report {
	out := tracker.Report{Total: len(issues), Score: ComputeScore(issues)}
	if c.opts.CountDuplicates {
		all := make([]tracker.CanonicalRecord, len(issues))
		for i, issue := range issues {
			all[i] = c.Record(issue)
		}
		counts := CountDuplicates(all)
		out.Records = Prioritize(all, recordSeverity, maxRecords)
		for i := range out.Records {
			occ := counts.Lookup(out.Records[i])
			out.Records[i].Occurrences = &occ
		}
		return out
	}
	kept := Prioritize(issues, issueSeverity, maxRecords)
	out.Records = make([]tracker.CanonicalRecord, len(kept))
	for i, issue := range kept {
		out.Records[i] = c.Record(issue)
	}
	return out
}

// Record derives the canonical fields for one row. It is pure.
func (c *Canonicalizer) Record(issue tracker.IssueRecord) tracker.CanonicalRecord {
	fingerprint := Sanitize(issue.Context)
	return tracker.CanonicalRecord{
		IssueRecord:     issue,
		HTMLFingerprint: fingerprint,
		ContentHash:     c.opts.Hasher.Hash([]byte(issue.URL + fingerprint)),
		XPathHash:       c.opts.Hasher.Hash([]byte(issue.URL + issue.XPath)),
		WCAGFormatted:   FormatWCAG(issue.WCAGConformance),
	}
}

func issueSeverity(r tracker.IssueRecord) string {
	return r.Severity
}

func recordSeverity(r tracker.CanonicalRecord) string {
	return r.Severity
}
