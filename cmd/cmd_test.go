package cmd

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/a11y-tracker/internal/config"
	"github.com/JakeFAU/a11y-tracker/internal/report"
	"github.com/JakeFAU/a11y-tracker/internal/sites"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// testConfig is a config that touches no network services.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Sites: config.SitesConfig{
			File:             filepath.Join(dir, "sites.yaml"),
			DefaultMaxPages:  100,
			DefaultStrategy:  "same-domain",
			DefaultCrawlType: string(tracker.CrawlSitemap),
		},
		Report: config.ReportConfig{Digest: "md5", MaxRecords: 50},
		Sheets: config.SheetsConfig{Backend: config.BackendMemory, BatchSize: 10, MaxAttempts: 1},
		Server: config.ServerConfig{Port: 9090},
	}
}

// execute runs the root command with app injected in place of config loading.
func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	prev := newApp
	newApp = func(string) (*App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const scannerCSV = "url,axeImpact,severity,issueId,wcagConformance,context,xpath\n" +
	"https://a.example/about,minor,goodToFix,region,best-practice,<main></main>,/html/body/main\n" +
	"https://a.example/,serious,mustFix,color-contrast,wcag143,<p>Low</p>,/html/body/p\n"

func TestCanonicalizeCommandWritesPrioritizedCSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "report.csv")
	outPath := filepath.Join(dir, "canonical.csv")
	require.NoError(t, os.WriteFile(in, []byte(scannerCSV), 0o600))

	app := &App{Config: testConfig(t), Logger: zap.NewNop()}
	_, err := execute(t, app, "canonicalize", "--in", in, "--out", outPath, "--counts")
	require.NoError(t, err)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, report.Columns(true), rows[0])
	require.Equal(t, "https://a.example/", rows[1][0])
	require.Equal(t, "mustFix", rows[1][2])
	require.Equal(t, "goodToFix", rows[2][2])
}

func TestCanonicalizeCommandMaxFlag(t *testing.T) {
	in := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(in, []byte(scannerCSV), 0o600))

	app := &App{Config: testConfig(t), Logger: zap.NewNop()}
	out, err := execute(t, app, "canonicalize", "--in", in, "--max", "1")
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, report.Columns(false), rows[0])
	require.Equal(t, "color-contrast", rows[1][3])
}

func TestCanonicalizeCommandRequiresInput(t *testing.T) {
	app := &App{Config: testConfig(t), Logger: zap.NewNop()}
	_, err := execute(t, app, "canonicalize")
	require.ErrorContains(t, err, "in")
}

func TestScanDryRunListsScheduledJobs(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Sites.File, []byte(`
https://a.example/:
  - name: Agency A
    start_date: Monday
https://b.example/:
  - name: Agency B
    start_date: Tuesday
    max: 20
    type: crawl
`), 0o600))

	app := &App{Config: cfg, Logger: zap.NewNop()}
	out, err := execute(t, app, "scan", "--day", "tuesday", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "Agency B\thttps://b.example/\tmax=20\tcrawl")
	require.NotContains(t, out, "Agency A")

	out, err = execute(t, app, "scan", "--day", "all", "--dry-run")
	require.NoError(t, err)
	require.Contains(t, out, "Agency A\thttps://a.example/\tmax=100\tsitemap")
}

func TestScanRejectsUnknownDay(t *testing.T) {
	app := &App{Config: testConfig(t), Logger: zap.NewNop()}
	_, err := execute(t, app, "scan", "--day", "someday")
	require.ErrorContains(t, err, "unknown day")
}

func TestSitesAddThenList(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>Office of  Examples</title></head><body></body></html>")
	}))
	t.Cleanup(ts.Close)

	cfg := testConfig(t)
	app := &App{Config: cfg, Logger: zap.NewNop()}
	out, err := execute(t, app, "sites", "add", "--url", ts.URL)
	require.NoError(t, err)
	require.Contains(t, out, "Office of Examples")

	reg, err := sites.Load(cfg.Sites.File, sites.Defaults{})
	require.NoError(t, err)
	require.Len(t, reg.Keys(), 1)
	entries := reg.Entries(reg.Keys()[0])
	require.Len(t, entries, 1)
	require.NotEmpty(t, entries[0].SheetID)
	require.Contains(t, sites.Weekdays, entries[0].StartDate)

	out, err = execute(t, app, "sites", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Office of Examples")

	_, err = execute(t, app, "sites", "add", "--url", ts.URL)
	require.ErrorIs(t, err, sites.ErrExists)
}

func TestSitesListEmptyRegistry(t *testing.T) {
	app := &App{Config: testConfig(t), Logger: zap.NewNop()}
	out, err := execute(t, app, "sites", "list")
	require.NoError(t, err)
	require.Contains(t, out, "no sites registered")
}

func TestSummarizeCountsFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	failed := summarize(zap.New(core), []tracker.RunResult{
		{Site: "a", Status: tracker.StatusSuccess, Stage: tracker.StageUnlocked},
		{Site: "b", Status: tracker.StatusFailed, Stage: tracker.StageScanFailed, Err: tracker.ErrScanFailed},
		{Site: "c", Status: tracker.StatusLockContended, Stage: tracker.StageIdle},
	}, 0)

	require.Equal(t, 1, failed)
	require.Len(t, logs.FilterMessage("site failed").All(), 1)
	batch := logs.FilterMessage("scan batch finished").All()
	require.Len(t, batch, 1)
	require.Equal(t, "b", batch[0].ContextMap()["failed_sites"])
}

func TestClosersRunInReverse(t *testing.T) {
	t.Parallel()

	var order []int
	var cl closers
	for i := range 3 {
		cl.add(func() { order = append(order, i) })
	}
	cl.close()
	require.Equal(t, []int{2, 1, 0}, order)
}

func TestBuildersRejectUnknownBackends(t *testing.T) {
	t.Parallel()

	var cl closers
	defer cl.close()
	ctx := t.Context()
	logger := zap.NewNop()

	_, err := buildArchive(ctx, config.ArchiveConfig{Backend: "ftp"}, logger, &cl)
	require.Error(t, err)
	_, err = buildHistory(ctx, config.HistoryConfig{Backend: "sqlite"}, logger, &cl)
	require.Error(t, err)
	_, err = buildNotifier(ctx, config.NotifyConfig{Backend: "sns"}, logger, &cl)
	require.Error(t, err)

	archive, err := buildArchive(ctx, config.ArchiveConfig{Backend: config.BackendNone}, logger, &cl)
	require.NoError(t, err)
	require.Nil(t, archive)
	history, err := buildHistory(ctx, config.HistoryConfig{Backend: config.BackendMemory}, logger, &cl)
	require.NoError(t, err)
	require.NotNil(t, history)
	require.NotNil(t, readiness(history))
	require.Nil(t, readiness(nil))
}
