package sites

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// TitleProber reads a landing page.
type TitleProber interface {
	Probe(ctx context.Context, rawURL string) (ProbeResult, error)
}

// SpreadsheetCreator provisions a spreadsheet.
type SpreadsheetCreator interface {
	CreateSpreadsheet(ctx context.Context, title string) (tracker.Spreadsheet, error)
}

// Registrar adds new sites to a registry.
type Registrar struct {
	Registry *Registry
	Prober   TitleProber
	Creator  SpreadsheetCreator
	// MaxPages is stored on new entries.
	MaxPages int
	// PickDay returns an index into Weekdays; nil picks at random.
	PickDay func() int
	Logger  *zap.Logger
}

// Register probes rawURL, creates a spreadsheet titled after the page and
// stores a new entry under the final URL. The registry is saved on success.
func (r *Registrar) Register(ctx context.Context, rawURL string) (Entry, error) {
	if r.Registry == nil || r.Prober == nil || r.Creator == nil {
		return Entry{}, errors.New("registrar is not fully configured")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rawURL = strings.TrimSpace(rawURL)
	if u, err := url.Parse(rawURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Entry{}, fmt.Errorf("invalid site url %q", rawURL)
	}
	if r.Registry.Has(rawURL) {
		return Entry{}, fmt.Errorf("%s: %w", rawURL, ErrExists)
	}

	probe, err := r.Prober.Probe(ctx, rawURL)
	if err != nil {
		return Entry{}, err
	}
	key := probe.FinalURL
	if key == "" {
		key = rawURL
	}
	if r.Registry.Has(key) {
		return Entry{}, fmt.Errorf("%s: %w", key, ErrExists)
	}

	sheet, err := r.Creator.CreateSpreadsheet(ctx, probe.Title)
	if err != nil {
		return Entry{}, fmt.Errorf("create spreadsheet: %w", err)
	}
	pick := r.PickDay
	if pick == nil {
		pick = func() int { return rand.IntN(len(Weekdays)) }
	}
	entry := Entry{
		URL:       key,
		Name:      probe.Title,
		SheetID:   sheet.ID,
		SheetURL:  sheet.URL,
		StartDate: Weekdays[pick()%len(Weekdays)],
		Max:       r.MaxPages,
	}
	if err := r.Registry.Add(key, entry); err != nil {
		return Entry{}, err
	}
	if err := r.Registry.Save(); err != nil {
		return Entry{}, err
	}
	logger.Info("site registered",
		zap.String("url", key),
		zap.String("name", entry.Name),
		zap.String("sheet_url", entry.SheetURL),
		zap.String("day", entry.StartDate),
	)
	return entry, nil
}
