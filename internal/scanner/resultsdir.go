package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// DirEntry is the slice of directory metadata FindRecentResultsDir needs.
type DirEntry struct {
	Name    string
	ModTime time.Time
}

// SelectRecent picks the most recently modified entry whose ModTime lies in
// [now-window, now+window]. Entries from earlier runs fall outside the window
// and are never chosen. Ties keep the first entry.
func SelectRecent(entries []DirEntry, window time.Duration, now time.Time) (DirEntry, bool) {
	var (
		best  DirEntry
		found bool
	)
	for _, e := range entries {
		age := now.Sub(e.ModTime)
		if age > window || age < -window {
			continue
		}
		if !found || e.ModTime.After(best.ModTime) {
			best = e
			found = true
		}
	}
	return best, found
}

// FindRecentResultsDir lists directories under root and returns the path of
// the one SelectRecent picks, or tracker.ErrReportMissing when none qualifies
// or root cannot be read.
func FindRecentResultsDir(root string, window time.Duration, now time.Time) (string, error) {
	items, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read results root %s: %w: %w", root, tracker.ErrReportMissing, err)
	}
	entries := make([]DirEntry, 0, len(items))
	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, DirEntry{Name: item.Name(), ModTime: info.ModTime()})
	}
	best, ok := SelectRecent(entries, window, now)
	if !ok {
		return "", fmt.Errorf("no results directory under %s modified within %s: %w",
			root, window, tracker.ErrReportMissing)
	}
	return filepath.Join(root, best.Name), nil
}
