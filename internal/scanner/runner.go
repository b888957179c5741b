package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/metrics"
	"github.com/JakeFAU/a11y-tracker/internal/retry"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Config controls how the scanner is invoked and where its output lands.
type Config struct {
	Command  string
	BaseArgs []string
	WorkDir  string
	Env      []string
	// Contact is the "Name:email" identification passed with -k.
	Contact string

	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
	KillGrace   time.Duration

	// ResultsDir is resolved against WorkDir when relative.
	ResultsDir    string
	RecencyWindow time.Duration
	// ReportFile is the report path inside a results directory.
	ReportFile string
	// SettleDelay is waited after a clean exit before looking for results.
	SettleDelay time.Duration
}

// ExitError reports a scanner process that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("scanner exited with code %d", e.Code)
	}
	return fmt.Sprintf("scanner exited with code %d: %s", e.Code, e.Stderr)
}

// Is lets errors.Is match tracker.ErrScanProcessFailed.
func (e *ExitError) Is(target error) bool {
	return target == tracker.ErrScanProcessFailed
}

// Runner runs scans one at a time.
type Runner struct {
	cfg    Config
	proc   Process
	now    func() time.Time
	logger *zap.Logger
}

// New validates cfg and returns a Runner. A nil proc uses ExecProcess.
func New(cfg Config, proc Process, logger *zap.Logger) (*Runner, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("scanner command is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("scanner timeout must be > 0")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ReportFile == "" {
		cfg.ReportFile = filepath.Join("reports", "report.csv")
	}
	if proc == nil {
		proc = ExecProcess{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, proc: proc, now: time.Now, logger: logger}, nil
}

// Run executes the scanner for job, retrying timeouts and non-zero exits,
// then locates the report it produced. Exhausted attempts return an error
// matching tracker.ErrScanFailed; a missing results directory returns one
// matching tracker.ErrReportMissing.
func (r *Runner) Run(ctx context.Context, job tracker.ScanJob) (tracker.ScanOutput, error) {
	var out tracker.ScanOutput
	if job.TargetURL == "" {
		return out, fmt.Errorf("%w: job %q has no target url", tracker.ErrScanFailed, job.SiteName)
	}
	excludeFile, cleanup, err := r.writeExcludeFile(job.ExcludePatterns)
	if err != nil {
		return out, fmt.Errorf("%w: %w", tracker.ErrScanFailed, err)
	}
	defer cleanup()

	spec := ProcessSpec{
		Name:      r.cfg.Command,
		Args:      BuildArgs(r.cfg.BaseArgs, job, r.cfg.Contact, excludeFile),
		Dir:       r.cfg.WorkDir,
		Env:       r.cfg.Env,
		KillGrace: r.cfg.KillGrace,
	}
	logger := r.logger.With(zap.String("site", job.SiteName), zap.String("url", job.TargetURL))
	host := metrics.SanitizeSite(job.TargetURL)
	start := r.now()

	err = retry.Do(ctx, retry.Policy{
		MaxAttempts: r.cfg.MaxAttempts,
		Backoff:     retry.Constant(r.cfg.RetryDelay),
		Timeout:     r.cfg.Timeout,
		Retryable: func(err error) bool {
			return errors.Is(err, tracker.ErrScanTimedOut) || errors.Is(err, tracker.ErrScanProcessFailed)
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Warn("scan attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}, func(attemptCtx context.Context, attempt int) error {
		out.Attempts = attempt
		logger.Info("scan attempt starting", zap.Int("attempt", attempt), zap.Strings("args", spec.Args))
		return r.attempt(ctx, attemptCtx, spec, host, logger)
	})
	out.Duration = r.now().Sub(start)
	if err != nil {
		return out, fmt.Errorf("%w: %w", tracker.ErrScanFailed, err)
	}
	logger.Info("scan finished",
		zap.Int("attempts", out.Attempts),
		zap.String("duration", tracker.FormatDuration(out.Duration)),
	)

	if err := sleepCtx(ctx, r.cfg.SettleDelay); err != nil {
		return out, fmt.Errorf("wait for results: %w", err)
	}
	dir, err := FindRecentResultsDir(r.resultsRoot(), r.cfg.RecencyWindow, r.now())
	if err != nil {
		return out, err
	}
	out.ResultsDir = dir
	out.ReportPath = filepath.Join(dir, r.cfg.ReportFile)
	return out, nil
}

func (r *Runner) attempt(parent, ctx context.Context, spec ProcessSpec, host string, logger *zap.Logger) error {
	res, err := r.proc.Run(ctx, spec)
	if res.Stdout != "" {
		logger.Debug("scanner stdout", zap.String("tail", res.Stdout))
	}
	switch {
	case err != nil && parent.Err() != nil:
		metrics.ObserveScanAttempt(host, "canceled", res.Duration)
		return fmt.Errorf("scan canceled: %w", err)
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.ObserveScanAttempt(host, "timeout", res.Duration)
		return fmt.Errorf("killed after %s: %w", r.cfg.Timeout, tracker.ErrScanTimedOut)
	case err != nil:
		metrics.ObserveScanAttempt(host, "error", res.Duration)
		return fmt.Errorf("start scanner: %w", err)
	case res.ExitCode != 0:
		metrics.ObserveScanAttempt(host, "exit_nonzero", res.Duration)
		return &ExitError{Code: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	default:
		metrics.ObserveScanAttempt(host, "success", res.Duration)
		return nil
	}
}

func (r *Runner) resultsRoot() string {
	root := r.cfg.ResultsDir
	if root == "" {
		root = "results"
	}
	if filepath.IsAbs(root) || r.cfg.WorkDir == "" {
		return root
	}
	return filepath.Join(r.cfg.WorkDir, root)
}

func (r *Runner) writeExcludeFile(patterns []string) (string, func(), error) {
	noop := func() {}
	if len(patterns) == 0 {
		return "", noop, nil
	}
	f, err := os.CreateTemp("", "a11y-exclude-*.txt")
	if err != nil {
		return "", noop, fmt.Errorf("create exclude file: %w", err)
	}
	cleanup := func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.logger.Warn("remove exclude file failed", zap.Error(rmErr))
		}
	}
	_, err = f.WriteString(strings.Join(patterns, "\n") + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("write exclude file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
