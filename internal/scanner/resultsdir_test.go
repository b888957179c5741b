package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

func TestSelectRecentSkipsStaleEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	entries := []DirEntry{
		{Name: "old", ModTime: now.Add(-2 * time.Hour)},
		{Name: "recent", ModTime: now.Add(-2 * time.Minute)},
		{Name: "newest", ModTime: now.Add(-30 * time.Second)},
	}

	got, ok := SelectRecent(entries, 5*time.Minute, now)
	require.True(t, ok)
	require.Equal(t, "newest", got.Name)

	_, ok = SelectRecent(entries[:1], 5*time.Minute, now)
	require.False(t, ok)
}

func TestSelectRecentEmpty(t *testing.T) {
	t.Parallel()

	_, ok := SelectRecent(nil, time.Minute, time.Now())
	require.False(t, ok)
}

func TestFindRecentResultsDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Now()
	stale := filepath.Join(root, "20261014_stale")
	fresh := filepath.Join(root, "20261015_fresh")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.MkdirAll(fresh, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), nil, 0o600))
	old := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	got, err := FindRecentResultsDir(root, 5*time.Minute, now)
	require.NoError(t, err)
	require.Equal(t, fresh, got)
}

func TestFindRecentResultsDirOnlyStale(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	stale := filepath.Join(root, "previous-run")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	_, err := FindRecentResultsDir(root, 5*time.Minute, time.Now())
	require.ErrorIs(t, err, tracker.ErrReportMissing)
}

func TestFindRecentResultsDirMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := FindRecentResultsDir(filepath.Join(t.TempDir(), "nope"), time.Minute, time.Now())
	require.ErrorIs(t, err, tracker.ErrReportMissing)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
