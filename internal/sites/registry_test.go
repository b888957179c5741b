package sites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

const sample = `https://alpha.example:
  - name: Alpha
    sheet_id: sheet-alpha
    start_date: Monday
    max: 50
    type: sitemap
https://beta.example/docs:
  - name: Beta
    start_date: tuesday
    exclude:
      - /private
  - name: Beta nightly
    start_date: all
    strategy: same-domain
`

var defaults = Defaults{MaxPages: 100, Strategy: "same-hostname", CrawlType: tracker.CrawlWebsite}

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestJobsByDay(t *testing.T) {
	reg, err := Load(writeRegistry(t, sample), defaults)
	require.NoError(t, err)

	monday, err := reg.Jobs("MONDAY", "")
	require.NoError(t, err)
	require.Len(t, monday, 2)
	require.Equal(t, "Alpha", monday[0].SiteName)
	require.Equal(t, "https://alpha.example", monday[0].TargetURL)
	require.Equal(t, 50, monday[0].MaxPages)
	require.Equal(t, tracker.CrawlSitemap, monday[0].CrawlType)
	require.Equal(t, "Beta nightly", monday[1].SiteName)
	require.Equal(t, "same-domain", monday[1].Strategy)

	tuesday, err := reg.Jobs("Tuesday", "")
	require.NoError(t, err)
	require.Len(t, tuesday, 2)
	require.Equal(t, []string{"/private"}, tuesday[0].ExcludePatterns)
	require.Equal(t, 100, tuesday[0].MaxPages)
	require.Equal(t, tracker.CrawlWebsite, tuesday[0].CrawlType)

	all, err := reg.Jobs("all", "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	named, err := reg.Jobs("all", "Beta")
	require.NoError(t, err)
	require.Len(t, named, 1)

	_, err = reg.Jobs("someday", "")
	require.Error(t, err)
}

func TestJobRejectsUnknownType(t *testing.T) {
	reg, err := Load(writeRegistry(t, "https://x.example:\n  - name: X\n    start_date: all\n    type: ftp\n"), defaults)
	require.NoError(t, err)
	_, err = reg.Jobs("all", "")
	require.Error(t, err)
}

func TestMissingFileIsEmpty(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "none.yml"), defaults)
	require.NoError(t, err)
	require.Empty(t, reg.Keys())
}

func TestSetSheetAndSaveRoundTrip(t *testing.T) {
	path := writeRegistry(t, sample)
	reg, err := Load(path, defaults)
	require.NoError(t, err)

	changed := reg.SetSheet("Beta", "https://beta.example/docs", tracker.Spreadsheet{ID: "new", URL: "https://sheets/new"})
	require.True(t, changed)
	require.False(t, reg.SetSheet("Alpha", "https://alpha.example", tracker.Spreadsheet{ID: "other"}))
	require.NoError(t, reg.Save())

	again, err := Load(path, defaults)
	require.NoError(t, err)
	entries := again.Entries("https://beta.example/docs")
	require.Len(t, entries, 2)
	require.Equal(t, "new", entries[0].SheetID)
	require.Empty(t, entries[1].SheetID)
	require.Equal(t, "sheet-alpha", again.Entries("https://alpha.example")[0].SheetID)
}

func TestAddRejectsDuplicates(t *testing.T) {
	reg, err := Load(writeRegistry(t, sample), defaults)
	require.NoError(t, err)
	require.ErrorIs(t, reg.Add("https://alpha.example", Entry{Name: "dup"}), ErrExists)
	require.NoError(t, reg.Add("https://gamma.example", Entry{Name: "Gamma"}))
	require.True(t, reg.Has("https://gamma.example"))
}
