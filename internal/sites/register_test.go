package sites

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

type fakeCreator struct {
	titles []string
	err    error
}

func (f *fakeCreator) CreateSpreadsheet(_ context.Context, title string) (tracker.Spreadsheet, error) {
	if f.err != nil {
		return tracker.Spreadsheet{}, f.err
	}
	f.titles = append(f.titles, title)
	return tracker.Spreadsheet{ID: "sheet-1", URL: "https://sheets.example/sheet-1"}, nil
}

func newLandingServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><head><title>\n  Example   Agency\n</title></head><body>hi</body></html>")
	})
	mux.HandleFunc("/untitled", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>no title</body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeFollowsRedirects(t *testing.T) {
	srv := newLandingServer(t)

	res, err := Prober{Timeout: 5 * time.Second}.Probe(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/home", res.FinalURL)
	require.Equal(t, "Example Agency", res.Title)

	_, err = Prober{}.Probe(context.Background(), srv.URL+"/untitled")
	require.Error(t, err)

	_, err = Prober{}.Probe(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestRegisterStoresEntry(t *testing.T) {
	srv := newLandingServer(t)
	path := filepath.Join(t.TempDir(), "sites.yml")
	reg, err := Load(path, defaults)
	require.NoError(t, err)
	creator := &fakeCreator{}
	r := &Registrar{
		Registry: reg,
		Prober:   Prober{Timeout: 5 * time.Second},
		Creator:  creator,
		MaxPages: 500,
		PickDay:  func() int { return 2 },
	}

	entry, err := r.Register(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/home", entry.URL)
	require.Equal(t, "Example Agency", entry.Name)
	require.Equal(t, "Wednesday", entry.StartDate)
	require.Equal(t, 500, entry.Max)
	require.Equal(t, "sheet-1", entry.SheetID)
	require.Equal(t, []string{"Example Agency"}, creator.titles)

	saved, err := Load(path, defaults)
	require.NoError(t, err)
	require.True(t, saved.Has(srv.URL+"/home"))

	_, err = r.Register(context.Background(), srv.URL+"/home")
	require.ErrorIs(t, err, ErrExists)
	require.Len(t, creator.titles, 1)
}

func TestRegisterValidates(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "sites.yml"), defaults)
	require.NoError(t, err)
	r := &Registrar{Registry: reg, Prober: Prober{}, Creator: &fakeCreator{err: errors.New("quota")}}

	_, err = r.Register(context.Background(), "not a url")
	require.Error(t, err)

	srv := newLandingServer(t)
	_, err = r.Register(context.Background(), srv.URL+"/home")
	require.ErrorContains(t, err, "quota")
	require.Empty(t, reg.Keys())
}
