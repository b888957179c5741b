package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/clock/system"
	"github.com/JakeFAU/a11y-tracker/internal/id/uuid"
	"github.com/JakeFAU/a11y-tracker/internal/orchestrator"
	"github.com/JakeFAU/a11y-tracker/internal/runreport"
	"github.com/JakeFAU/a11y-tracker/internal/sites"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

type scanOptions struct {
	day        string
	site       string
	dryRun     bool
	reportPath string
	listen     bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the sites scheduled for a day and publish their reports.",
		Long: `scan runs every registry entry scheduled for --day (today by default, or
"all") one site at a time. Each site is scanned under the global scan lock,
its report is canonicalized and written to a tab named after the run date.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runScan(cmd.Context(), cmd.OutOrStdout(), appInstance, opts)
		},
	}
	cmd.Flags().StringVar(&opts.day, "day", "", fmt.Sprintf("weekday to run, or %q (default today)", sites.DayAll))
	cmd.Flags().StringVar(&opts.site, "site", "", "only run entries with this name")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "list the scheduled jobs and exit")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write a Markdown run report to this path")
	cmd.Flags().BoolVar(&opts.listen, "listen", false, "serve health and metrics while scanning")
	return cmd
}

func runScan(ctx context.Context, out io.Writer, appInstance *App, opts scanOptions) error {
	cfg := appInstance.Config
	logger := appInstance.Logger

	loc, err := cfg.Run.Location()
	if err != nil {
		return err
	}
	clk := system.New()
	startedAt := clk.Now().In(loc)
	day := opts.day
	if day == "" {
		day = startedAt.Weekday().String()
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	jobs, err := registry.Jobs(day, opts.site)
	if err != nil {
		return err
	}
	logger.Info("scan jobs selected",
		zap.String("day", day),
		zap.String("site", opts.site),
		zap.Int("jobs", len(jobs)),
		zap.String("registry", registry.Path()),
	)
	if opts.dryRun {
		for _, j := range jobs {
			fmt.Fprintf(out, "%s\t%s\tmax=%d\t%s\n", j.SiteName, j.TargetURL, j.MaxPages, j.CrawlType)
		}
		return nil
	}
	if len(jobs) == 0 {
		return nil
	}

	var cl closers
	defer cl.close()

	locker, err := buildLocker(cfg.Lock, logger, &cl)
	if err != nil {
		return err
	}
	scan, err := buildScanner(cfg.Scanner, logger)
	if err != nil {
		return err
	}
	canon, err := buildCanonicalizer(cfg.Report, logger)
	if err != nil {
		return err
	}
	publisher, err := buildSheets(ctx, cfg, logger)
	if err != nil {
		return err
	}
	archive, err := buildArchive(ctx, cfg.Archive, logger, &cl)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(ctx, cfg.Notify, logger, &cl)
	if err != nil {
		return err
	}
	history, err := buildHistory(ctx, cfg.History, logger, &cl)
	if err != nil {
		return err
	}
	if opts.listen {
		startServer(ctx, ":"+strconv.Itoa(cfg.Server.Port), history, logger, &cl)
	}
	// Registered after the server so it drains before shutdown.
	hub, err := buildHub(cfg.History, history, logger, &cl)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Locker:        locker,
		Scanner:       scan,
		Canonicalizer: canon,
		Sheets:        publisher,
		Archive:       archive,
		Notifier:      notifier,
		Events:        hub,
		Clock:         clk,
		IDs:           uuid.New(),
		OnSheetCreated: func(job tracker.ScanJob, sheet tracker.Spreadsheet) error {
			if !registry.SetSheet(job.SiteName, job.TargetURL, sheet) {
				return fmt.Errorf("no registry entry for %s", job.SiteName)
			}
			return registry.Save()
		},
	}, orchestrator.Config{
		Mode:           tracker.PublishMode(cfg.Sheets.Mode),
		MaxRecords:     cfg.Report.MaxRecords,
		Pause:          cfg.Run.PauseBetweenSites,
		NotifyTopic:    cfg.Notify.Topic,
		ArchivePrefix:  cfg.Archive.Prefix,
		ReleaseTimeout: cfg.Run.ReleaseTimeout,
		Location:       loc,
	}, logger.Named("orchestrator"))
	if err != nil {
		return err
	}

	results := orch.RunBatch(ctx, jobs)
	failed := summarize(logger, results, time.Since(startedAt))

	if opts.reportPath != "" {
		if err := writeRunReport(opts.reportPath, runreport.Batch{Day: day, StartedAt: startedAt, Results: results}); err != nil {
			logger.Error("write run report", zap.String("path", opts.reportPath), zap.Error(err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d site(s) failed", failed, len(results))
	}
	return ctx.Err()
}

// summarize logs one line per site and returns the number of failures.
func summarize(logger *zap.Logger, results []tracker.RunResult, elapsed time.Duration) int {
	failed := 0
	var names []string
	for _, r := range results {
		fields := []zap.Field{
			zap.String("site", r.Site),
			zap.String("status", string(r.Status)),
			zap.String("stage", string(r.Stage)),
			zap.Int("records", r.Records),
			zap.String("duration", tracker.FormatDuration(r.Duration)),
		}
		if r.SheetURL != "" {
			fields = append(fields, zap.String("sheet", r.SheetURL))
		}
		if r.Status == tracker.StatusFailed {
			failed++
			names = append(names, r.Site)
			logger.Error("site failed", append(fields, zap.Error(r.Err))...)
			continue
		}
		logger.Info("site finished", fields...)
	}
	logger.Info("scan batch finished",
		zap.Int("sites", len(results)),
		zap.Int("failed", failed),
		zap.String("failed_sites", strings.Join(names, ", ")),
		zap.String("elapsed", tracker.FormatDuration(elapsed)),
	)
	return failed
}

func writeRunReport(path string, batch runreport.Batch) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return runreport.Write(f, batch)
}
