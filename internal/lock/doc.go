// Package lock implements the exclusive-run guard: a filesystem marker for
// single-host deployments and a Redis lease for shared ones.
package lock
