// Package store declares the run-history repository. Implementations live
// under internal/storage; this package must not import database drivers.
package store
