package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// WaitForFile polls until path exists as a regular file or timeout elapses.
// Timing out yields an error wrapping tracker.ErrReportMissing.
func WaitForFile(ctx context.Context, path string, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.Mode().IsRegular():
			return nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("stat report: %w", err)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s not found after %s: %w", path, timeout, tracker.ErrReportMissing)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for report: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
