package scanner

import (
	"strconv"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Scanner CLI crawl modes.
const (
	scanTypeSitemap = "1"
	scanTypeWebsite = "2"
)

// BuildArgs renders the scanner flags for job after the configured base
// arguments. excludeFile is passed with -x when non-empty.
func BuildArgs(base []string, job tracker.ScanJob, contact, excludeFile string) []string {
	args := append([]string(nil), base...)
	args = append(args, "-u", job.TargetURL)
	if job.CrawlType == tracker.CrawlSitemap {
		args = append(args, "-c", scanTypeSitemap)
	} else {
		args = append(args, "-c", scanTypeWebsite)
		if job.Strategy != "" {
			args = append(args, "-s", job.Strategy)
		}
	}
	if job.MaxPages > 0 {
		args = append(args, "-p", strconv.Itoa(job.MaxPages))
	}
	if contact != "" {
		args = append(args, "-k", contact)
	}
	if excludeFile != "" {
		args = append(args, "-x", excludeFile)
	}
	return args
}
