// Package tracker holds the domain types, error taxonomy and consumer-side
// interfaces shared by the scan, canonicalize and publish pipeline.
package tracker
