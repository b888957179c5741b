// Package progress carries run-stage events from the orchestrator to
// pluggable sinks. A non-blocking Hub batches events on a background
// goroutine so a slow sink (a database, say) never stalls a scan.
package progress
