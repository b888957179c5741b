// Package config loads and validates tracker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/JakeFAU/a11y-tracker/internal/hash"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// AppName scopes the XDG directories.
const AppName = "a11y-tracker"

// Backend names shared by the pluggable sections.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendGoogle   = "google"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendPubSub   = "pubsub"
)

// Config captures all tracker configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Sites   SitesConfig   `mapstructure:"sites"`
	Lock    LockConfig    `mapstructure:"lock"`
	Scanner ScannerConfig `mapstructure:"scanner"`
	Report  ReportConfig  `mapstructure:"report"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Archive ArchiveConfig `mapstructure:"archive"`
	History HistoryConfig `mapstructure:"history"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
	Run     RunConfig     `mapstructure:"run"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SitesConfig locates the site registry and the defaults for new entries.
type SitesConfig struct {
	File             string        `mapstructure:"file"`
	DefaultMaxPages  int           `mapstructure:"default_max_pages"`
	DefaultStrategy  string        `mapstructure:"default_strategy"`
	DefaultCrawlType string        `mapstructure:"default_crawl_type"`
	UserAgent        string        `mapstructure:"user_agent"`
	ProbeTimeout     time.Duration `mapstructure:"probe_timeout"`
}

// LockConfig selects the exclusive-run guard.
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// ScannerConfig describes the scanner CLI and its retry budget.
type ScannerConfig struct {
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	WorkDir       string        `mapstructure:"work_dir"`
	Env           []string      `mapstructure:"env"`
	Contact       string        `mapstructure:"contact"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	KillGrace     time.Duration `mapstructure:"kill_grace"`
	ResultsDir    string        `mapstructure:"results_dir"`
	RecencyWindow time.Duration `mapstructure:"recency_window"`
	ReportFile    string        `mapstructure:"report_file"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
}

// ReportConfig controls canonicalization.
type ReportConfig struct {
	Digest          string        `mapstructure:"digest"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout"`
	CountDuplicates bool          `mapstructure:"count_duplicates"`
	MaxRecords      int           `mapstructure:"max_records"`
}

// SheetsConfig controls the spreadsheet backend and publish behavior.
type SheetsConfig struct {
	Backend         string        `mapstructure:"backend"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	TokenFile       string        `mapstructure:"token_file"`
	Endpoint        string        `mapstructure:"endpoint"`
	Mode            string        `mapstructure:"mode"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffInitial  time.Duration `mapstructure:"backoff_initial"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	DatedSheetIndex int           `mapstructure:"dated_sheet_index"`
	// RequestsPerMinute throttles read and write calls separately; zero
	// disables throttling.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

// ArchiveConfig selects where raw reports are kept.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	Prefix      string `mapstructure:"prefix"`
	Dir         string `mapstructure:"dir"`
	Bucket      string `mapstructure:"bucket"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
	S3Region    string `mapstructure:"s3_region"`
	S3UseSSL    bool   `mapstructure:"s3_use_ssl"`
}

// HistoryConfig selects the run history store and the progress hub sizing.
type HistoryConfig struct {
	Backend     string        `mapstructure:"backend"`
	DSN         string        `mapstructure:"dsn"`
	Table       string        `mapstructure:"table"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	HubBuffer   int           `mapstructure:"hub_buffer"`
	HubBatch    int           `mapstructure:"hub_batch"`
	HubWindow   time.Duration `mapstructure:"hub_window"`
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

// NotifyConfig controls run-completion notifications.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the metrics and history HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RunConfig tunes the batch loop.
type RunConfig struct {
	PauseBetweenSites time.Duration `mapstructure:"pause_between_sites"`
	ReleaseTimeout    time.Duration `mapstructure:"release_timeout"`
	Timezone          string        `mapstructure:"timezone"`
}

// Load builds a Config from disk/environment. An empty path falls back to
// $XDG_CONFIG_HOME/a11y-tracker/config.yaml when that file exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("A11Y")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		if found, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("sites.file", filepath.Join(xdg.ConfigHome, AppName, "sites.yaml"))
	v.SetDefault("sites.default_max_pages", 500)
	v.SetDefault("sites.default_strategy", "same-domain")
	v.SetDefault("sites.default_crawl_type", string(tracker.CrawlSitemap))
	v.SetDefault("sites.user_agent", "a11y-tracker/1.0")
	v.SetDefault("sites.probe_timeout", 30*time.Second)

	v.SetDefault("lock.backend", BackendFile)
	v.SetDefault("lock.path", filepath.Join(xdg.StateHome, AppName, "scan.lock"))
	v.SetDefault("lock.stale_after", 0)
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.key", "a11y-tracker:scan-lock")
	v.SetDefault("lock.ttl", 6*time.Hour)

	v.SetDefault("scanner.command", "node")
	v.SetDefault("scanner.args", []string{"--max-old-space-size=6000", "--no-deprecation", "purple-a11y/cli.js"})
	v.SetDefault("scanner.work_dir", "")
	v.SetDefault("scanner.env", []string{})
	v.SetDefault("scanner.contact", "A11y Tracker:a11y@example.org")
	v.SetDefault("scanner.max_attempts", 3)
	v.SetDefault("scanner.retry_delay", 30*time.Second)
	v.SetDefault("scanner.timeout", 2*time.Hour)
	v.SetDefault("scanner.kill_grace", 10*time.Second)
	v.SetDefault("scanner.results_dir", "results")
	v.SetDefault("scanner.recency_window", 5*time.Minute)
	v.SetDefault("scanner.report_file", filepath.Join("reports", "report.csv"))
	v.SetDefault("scanner.settle_delay", 5*time.Second)

	v.SetDefault("report.digest", hash.MD5)
	v.SetDefault("report.poll_interval", time.Second)
	v.SetDefault("report.wait_timeout", 2*time.Minute)
	v.SetDefault("report.count_duplicates", false)
	v.SetDefault("report.max_records", 10000)

	v.SetDefault("sheets.backend", BackendGoogle)
	v.SetDefault("sheets.credentials_file", "")
	v.SetDefault("sheets.endpoint", "")
	v.SetDefault("sheets.token_file", "")
	v.SetDefault("sheets.mode", string(tracker.ModeRefresh))
	v.SetDefault("sheets.batch_size", 500)
	v.SetDefault("sheets.max_attempts", 5)
	v.SetDefault("sheets.backoff_initial", time.Second)
	v.SetDefault("sheets.backoff_max", 30*time.Second)
	v.SetDefault("sheets.call_timeout", 60*time.Second)
	v.SetDefault("sheets.dated_sheet_index", 0)
	v.SetDefault("sheets.requests_per_minute", 60)
	v.SetDefault("sheets.burst", 10)

	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("archive.dir", filepath.Join(xdg.DataHome, AppName, "archive"))
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_access_key", "")
	v.SetDefault("archive.s3_secret_key", "")
	v.SetDefault("archive.s3_region", "")
	v.SetDefault("archive.s3_use_ssl", true)

	v.SetDefault("history.backend", BackendNone)
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.table", "a11y_runs")
	v.SetDefault("history.max_conns", 4)
	v.SetDefault("history.min_conns", 0)
	v.SetDefault("history.hub_buffer", 256)
	v.SetDefault("history.hub_batch", 64)
	v.SetDefault("history.hub_window", 250*time.Millisecond)
	v.SetDefault("history.sink_timeout", 5*time.Second)

	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "a11y-runs")

	v.SetDefault("server.port", 9090)

	v.SetDefault("run.pause_between_sites", 0)
	v.SetDefault("run.release_timeout", 10*time.Second)
	v.SetDefault("run.timezone", "Local")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Sites.File != "", "sites.file is required")
	check(c.Sites.DefaultMaxPages > 0, "sites.default_max_pages must be > 0")
	switch tracker.CrawlType(c.Sites.DefaultCrawlType) {
	case tracker.CrawlSitemap, tracker.CrawlWebsite:
	default:
		check(false, "sites.default_crawl_type %q is not sitemap or crawl", c.Sites.DefaultCrawlType)
	}

	switch c.Lock.Backend {
	case BackendFile:
		check(c.Lock.Path != "", "lock.path is required for the file lock")
	case BackendRedis:
		check(c.Lock.RedisAddr != "", "lock.redis_addr is required for the redis lock")
		check(c.Lock.Key != "", "lock.key is required for the redis lock")
		check(c.Lock.TTL > 0, "lock.ttl must be > 0")
	default:
		check(false, "lock.backend %q is not file or redis", c.Lock.Backend)
	}

	check(c.Scanner.Command != "", "scanner.command is required")
	check(c.Scanner.MaxAttempts > 0, "scanner.max_attempts must be > 0")
	check(c.Scanner.Timeout > 0, "scanner.timeout must be > 0")
	check(strings.TrimSpace(c.Scanner.Contact) != "", "scanner.contact is required")
	check(c.Scanner.RecencyWindow > 0, "scanner.recency_window must be > 0")

	if _, err := hash.New(c.Report.Digest); err != nil {
		check(false, "report.digest: %v", err)
	}
	check(c.Report.MaxRecords >= 0, "report.max_records must be >= 0")

	switch c.Sheets.Backend {
	case BackendGoogle, BackendMemory:
	default:
		check(false, "sheets.backend %q is not google or memory", c.Sheets.Backend)
	}
	switch tracker.PublishMode(c.Sheets.Mode) {
	case tracker.ModeRefresh, tracker.ModeAppend:
	default:
		check(false, "sheets.mode %q is not refresh or append", c.Sheets.Mode)
	}
	check(c.Sheets.BatchSize > 0, "sheets.batch_size must be > 0")
	check(c.Sheets.MaxAttempts > 0, "sheets.max_attempts must be > 0")
	check(c.Sheets.RequestsPerMinute >= 0, "sheets.requests_per_minute must be >= 0")

	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		check(c.Archive.Dir != "", "archive.dir is required for the local archive")
	case BackendGCS:
		check(c.Archive.Bucket != "", "archive.bucket is required for the gcs archive")
	case BackendS3:
		check(c.Archive.Bucket != "", "archive.bucket is required for the s3 archive")
		check(c.Archive.S3Endpoint != "", "archive.s3_endpoint is required for the s3 archive")
	default:
		check(false, "archive.backend %q is not supported", c.Archive.Backend)
	}

	switch c.History.Backend {
	case BackendNone, BackendMemory:
	case BackendPostgres:
		check(c.History.DSN != "", "history.dsn is required for postgres history")
	default:
		check(false, "history.backend %q is not supported", c.History.Backend)
	}

	switch c.Notify.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		check(c.Notify.ProjectID != "", "notify.project_id is required for pubsub")
		check(c.Notify.Topic != "", "notify.topic is required for pubsub")
	default:
		check(false, "notify.backend %q is not supported", c.Notify.Backend)
	}

	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.Run.PauseBetweenSites >= 0, "run.pause_between_sites must be >= 0")
	if _, err := c.Run.Location(); err != nil {
		check(false, "run.timezone: %v", err)
	}

	return errors.Join(errs...)
}

// Location resolves the timezone used to name dated tabs.
func (r RunConfig) Location() (*time.Location, error) {
	switch r.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		loc, err := time.LoadLocation(r.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", r.Timezone, err)
		}
		return loc, nil
	}
}
