// Package report turns the scanner's CSV output into canonical records:
// sanitized HTML fingerprints, content and xpath hashes, formatted WCAG
// tags, severity ordering and optional duplicate counts.
package report
