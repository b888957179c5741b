// Package sites manages the site registry: a YAML document keyed by site
// URL whose values are lists of scan entries.
package sites

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// DayAll matches every entry regardless of its weekday.
const DayAll = "all"

// Weekdays in the order used for random assignment.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// ErrExists is returned when adding a URL that is already registered.
var ErrExists = errors.New("site already registered")

// Entry is one scan configuration for a site.
type Entry struct {
	URL       string   `yaml:"url,omitempty"`
	Name      string   `yaml:"name"`
	SheetID   string   `yaml:"sheet_id,omitempty"`
	SheetURL  string   `yaml:"sheet_url,omitempty"`
	StartDate string   `yaml:"start_date,omitempty"`
	Max       int      `yaml:"max,omitempty"`
	Type      string   `yaml:"type,omitempty"`
	Strategy  string   `yaml:"strategy,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty"`
}

// Defaults fill fields an entry leaves empty.
type Defaults struct {
	MaxPages  int
	Strategy  string
	CrawlType tracker.CrawlType
}

// Registry is the in-memory view of the registry file.
type Registry struct {
	path     string
	defaults Defaults

	mu    sync.Mutex
	sites map[string][]Entry
}

// Load reads path. A missing file yields an empty registry that Save will
// create.
func Load(path string, defaults Defaults) (*Registry, error) {
	r := &Registry{path: path, defaults: defaults, sites: make(map[string][]Entry)}
	// #nosec G304 -- the registry path comes from operator configuration.
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read site registry: %w", err)
	}
	if err := yaml.Unmarshal(raw, &r.sites); err != nil {
		return nil, fmt.Errorf("parse site registry %s: %w", path, err)
	}
	if r.sites == nil {
		r.sites = make(map[string][]Entry)
	}
	return r, nil
}

// Path returns the file the registry saves to.
func (r *Registry) Path() string {
	return r.path
}

// Keys returns the registered site URLs in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.sites))
	for k := range r.sites {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Entries returns the entries registered under key.
func (r *Registry) Entries(key string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sites[key])
}

// Jobs builds scan jobs for entries scheduled on day ("all" or a weekday
// name, case-insensitive). A non-empty name keeps only entries with that
// name. Jobs come out in key order.
func (r *Registry) Jobs(day, name string) ([]tracker.ScanJob, error) {
	day = strings.ToLower(strings.TrimSpace(day))
	if day != DayAll && !isWeekday(day) {
		return nil, fmt.Errorf("unknown day %q", day)
	}
	var jobs []tracker.ScanJob
	for _, key := range r.Keys() {
		for _, e := range r.Entries(key) {
			if name != "" && e.Name != name {
				continue
			}
			if day != DayAll && !strings.EqualFold(e.StartDate, day) && !strings.EqualFold(e.StartDate, DayAll) {
				continue
			}
			job, err := r.job(key, e)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (r *Registry) job(key string, e Entry) (tracker.ScanJob, error) {
	target := e.URL
	if target == "" {
		target = key
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return tracker.ScanJob{}, fmt.Errorf("site %q has an invalid url %q", key, target)
	}
	job := tracker.ScanJob{
		SiteName:        e.Name,
		TargetURL:       target,
		MaxPages:        e.Max,
		Strategy:        e.Strategy,
		CrawlType:       tracker.CrawlType(strings.ToLower(e.Type)),
		SheetID:         e.SheetID,
		ExcludePatterns: slices.Clone(e.Exclude),
	}
	if job.SiteName == "" {
		job.SiteName = u.Hostname()
	}
	if job.MaxPages <= 0 {
		job.MaxPages = r.defaults.MaxPages
	}
	if job.Strategy == "" {
		job.Strategy = r.defaults.Strategy
	}
	switch job.CrawlType {
	case "":
		job.CrawlType = r.defaults.CrawlType
	case tracker.CrawlSitemap, tracker.CrawlWebsite:
	default:
		return tracker.ScanJob{}, fmt.Errorf("site %q has unknown type %q", key, e.Type)
	}
	return job, nil
}

// Add registers e under key. It fails with ErrExists when key is taken.
func (r *Registry) Add(key string, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sites[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrExists)
	}
	r.sites[key] = []Entry{e}
	return nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sites[key]
	return ok
}

// SetSheet records a provisioned spreadsheet on every entry named siteName
// that targets targetURL. It reports whether anything changed.
func (r *Registry) SetSheet(siteName, targetURL string, sheet tracker.Spreadsheet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for key, entries := range r.sites {
		for i := range entries {
			e := &entries[i]
			target := e.URL
			if target == "" {
				target = key
			}
			if target != targetURL || (e.Name != siteName && e.Name != "") || e.SheetID != "" {
				continue
			}
			e.SheetID = sheet.ID
			e.SheetURL = sheet.URL
			changed = true
		}
	}
	return changed
}

// Save writes the registry atomically.
func (r *Registry) Save() error {
	r.mu.Lock()
	raw, err := yaml.Marshal(r.sites)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode site registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sites-*.yml")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

func isWeekday(day string) bool {
	for _, w := range Weekdays {
		if strings.EqualFold(w, day) {
			return true
		}
	}
	return false
}
