package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/api"
	"github.com/JakeFAU/a11y-tracker/internal/config"
	"github.com/JakeFAU/a11y-tracker/internal/hash"
	"github.com/JakeFAU/a11y-tracker/internal/lock"
	"github.com/JakeFAU/a11y-tracker/internal/metrics"
	"github.com/JakeFAU/a11y-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/a11y-tracker/internal/progress"
	"github.com/JakeFAU/a11y-tracker/internal/progress/sinks"
	pubmemory "github.com/JakeFAU/a11y-tracker/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/a11y-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/a11y-tracker/internal/report"
	"github.com/JakeFAU/a11y-tracker/internal/scanner"
	"github.com/JakeFAU/a11y-tracker/internal/sheets"
	sheetsgoogle "github.com/JakeFAU/a11y-tracker/internal/sheets/google"
	sheetsmemory "github.com/JakeFAU/a11y-tracker/internal/sheets/memory"
	"github.com/JakeFAU/a11y-tracker/internal/sites"
	"github.com/JakeFAU/a11y-tracker/internal/storage/gcs"
	"github.com/JakeFAU/a11y-tracker/internal/storage/local"
	"github.com/JakeFAU/a11y-tracker/internal/storage/memory"
	"github.com/JakeFAU/a11y-tracker/internal/storage/postgres"
	"github.com/JakeFAU/a11y-tracker/internal/storage/s3"
	"github.com/JakeFAU/a11y-tracker/internal/store"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// closers runs cleanup functions in reverse order of registration.
type closers []func()

func (c *closers) add(fn func()) {
	*c = append(*c, fn)
}

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func loadRegistry(cfg config.Config) (*sites.Registry, error) {
	reg, err := sites.Load(cfg.Sites.File, sites.Defaults{
		MaxPages:  cfg.Sites.DefaultMaxPages,
		Strategy:  cfg.Sites.DefaultStrategy,
		CrawlType: tracker.CrawlType(cfg.Sites.DefaultCrawlType),
	})
	if err != nil {
		return nil, fmt.Errorf("load site registry: %w", err)
	}
	return reg, nil
}

func buildLocker(cfg config.LockConfig, logger *zap.Logger, cl *closers) (tracker.Locker, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		cl.add(func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis client", zap.Error(err))
			}
		})
		l, err := lock.NewRedis(client, lock.RedisConfig{Key: cfg.Key, TTL: cfg.TTL})
		if err != nil {
			return nil, fmt.Errorf("init redis lock: %w", err)
		}
		return l, nil
	default:
		l, err := lock.NewFile(lock.FileConfig{Path: cfg.Path, StaleAfter: cfg.StaleAfter}, logger.Named("lock"))
		if err != nil {
			return nil, fmt.Errorf("init file lock: %w", err)
		}
		return l, nil
	}
}

func buildScanner(cfg config.ScannerConfig, logger *zap.Logger) (*scanner.Runner, error) {
	r, err := scanner.New(scanner.Config{
		Command:       cfg.Command,
		BaseArgs:      cfg.Args,
		WorkDir:       cfg.WorkDir,
		Env:           cfg.Env,
		Contact:       cfg.Contact,
		MaxAttempts:   cfg.MaxAttempts,
		RetryDelay:    cfg.RetryDelay,
		Timeout:       cfg.Timeout,
		KillGrace:     cfg.KillGrace,
		ResultsDir:    cfg.ResultsDir,
		RecencyWindow: cfg.RecencyWindow,
		ReportFile:    cfg.ReportFile,
		SettleDelay:   cfg.SettleDelay,
	}, nil, logger.Named("scanner"))
	if err != nil {
		return nil, fmt.Errorf("init scanner: %w", err)
	}
	return r, nil
}

func buildCanonicalizer(cfg config.ReportConfig, logger *zap.Logger) (*report.Canonicalizer, error) {
	h, err := hash.New(cfg.Digest)
	if err != nil {
		return nil, fmt.Errorf("init digest: %w", err)
	}
	c, err := report.NewCanonicalizer(report.Options{
		Hasher:          h,
		PollInterval:    cfg.PollInterval,
		WaitTimeout:     cfg.WaitTimeout,
		CountDuplicates: cfg.CountDuplicates,
		Logger:          logger.Named("report"),
	})
	if err != nil {
		return nil, fmt.Errorf("init canonicalizer: %w", err)
	}
	return c, nil
}

func buildSheets(ctx context.Context, cfg config.Config, logger *zap.Logger) (*sheets.Publisher, error) {
	var client sheets.Client
	switch cfg.Sheets.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory spreadsheets, nothing will be published")
		client = sheetsmemory.New()
	default:
		c, err := sheetsgoogle.New(ctx, sheetsgoogle.Config{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			TokenFile:       cfg.Sheets.TokenFile,
			Endpoint:        cfg.Sheets.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("init sheets client: %w", err)
		}
		client = c
	}
	p, err := sheets.New(client, sheets.Config{
		BatchSize:       cfg.Sheets.BatchSize,
		MaxAttempts:     cfg.Sheets.MaxAttempts,
		BackoffInitial:  cfg.Sheets.BackoffInitial,
		BackoffMax:      cfg.Sheets.BackoffMax,
		CallTimeout:     cfg.Sheets.CallTimeout,
		IncludeCounts:   cfg.Report.CountDuplicates,
		DatedSheetIndex: cfg.Sheets.DatedSheetIndex,
		Limiter: ratelimit.New(ratelimit.Config{
			PerMinute: cfg.Sheets.RequestsPerMinute,
			Burst:     cfg.Sheets.Burst,
		}),
	}, logger.Named("sheets"))
	if err != nil {
		return nil, fmt.Errorf("init sheet publisher: %w", err)
	}
	return p, nil
}

// buildArchive returns nil when archiving is off. Key prefixes are applied
// by the orchestrator, so backends get none of their own.
func buildArchive(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger, cl *closers) (tracker.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	case config.BackendLocal:
		s, err := local.New(local.Config{Dir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return s, nil
	case config.BackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		cl.add(func() {
			if err := client.Close(); err != nil {
				logger.Warn("close gcs client", zap.Error(err))
			}
		})
		s, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return s, nil
	case config.BackendS3:
		s, err := s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 archive: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// buildHistory returns nil when history is off.
func buildHistory(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger, cl *closers) (store.RunRepository, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return memory.NewRunStore(), nil
	case config.BackendPostgres:
		s, err := postgres.NewRunStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			Table:    cfg.Table,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init run history: %w", err)
		}
		cl.add(s.Close)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate run history: %w", err)
		}
		logger.Info("run history ready", zap.String("table", cfg.Table))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

// buildNotifier returns nil when notifications are off.
func buildNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger, cl *closers) (tracker.Publisher, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return pubmemory.New(), nil
	case config.BackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		p, err := pubsubpublisher.New(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		cl.add(func() {
			p.Close()
			if err := client.Close(); err != nil {
				logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}

// buildHub starts the progress hub with the log, metrics and history sinks.
func buildHub(cfg config.HistoryConfig, repo store.RunRepository, logger *zap.Logger, cl *closers) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(logger.Named("progress")), promSink}
	if repo != nil {
		hubSinks = append(hubSinks, sinks.NewStoreSink(repo, logger.Named("history")))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.HubBuffer,
		MaxBatchEvents: cfg.HubBatch,
		MaxBatchWait:   cfg.HubWindow,
		SinkTimeout:    cfg.SinkTimeout,
		Logger:         logger.Named("hub"),
	}, hubSinks...)
	cl.add(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(ctx); err != nil {
			logger.Warn("close progress hub", zap.Error(err))
		}
	})
	return hub, nil
}

func readiness(repo store.RunRepository) api.ReadyFunc {
	if repo == nil {
		return nil
	}
	return func(ctx context.Context) error {
		_, err := repo.ListRuns(ctx, store.RunFilter{Limit: 1})
		return err
	}
}

// startServer serves the API in the background until ctx is done. The
// returned channel receives the error if the listener fails.
func startServer(ctx context.Context, addr string, repo store.RunRepository, logger *zap.Logger, cl *closers) <-chan error {
	metrics.Init()
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(repo, readiness(repo), logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			errCh <- err
		}
	}()
	cl.add(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	})
	return errCh
}
