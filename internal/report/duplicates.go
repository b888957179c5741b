package report

import "github.com/JakeFAU/a11y-tracker/internal/tracker"

// DuplicateCounts holds occurrence counts keyed by xpath, content hash and
// the combined content|xpath identifier.
type DuplicateCounts struct {
	XPath    map[string]int
	Content  map[string]int
	Combined map[string]int
}

// CombinedKey joins the two hashes into the per-instance identifier.
func CombinedKey(rec tracker.CanonicalRecord) string {
	return rec.ContentHash + "|" + rec.XPathHash
}

// CountDuplicates tallies records. Pass the full parsed set so counts are
// not skewed by prioritization or truncation.
func CountDuplicates(records []tracker.CanonicalRecord) DuplicateCounts {
	counts := DuplicateCounts{
		XPath:    make(map[string]int),
		Content:  make(map[string]int),
		Combined: make(map[string]int),
	}
	for _, rec := range records {
		counts.XPath[rec.XPath]++
		counts.Content[rec.ContentHash]++
		counts.Combined[CombinedKey(rec)]++
	}
	return counts
}

// Lookup returns the occurrences for one record.
func (c DuplicateCounts) Lookup(rec tracker.CanonicalRecord) tracker.Occurrences {
	return tracker.Occurrences{
		XPath:    c.XPath[rec.XPath],
		Content:  c.Content[rec.ContentHash],
		Combined: c.Combined[CombinedKey(rec)],
	}
}
