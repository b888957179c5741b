// Package scanner runs the external accessibility scanner as a subprocess
// with a wall-clock limit and bounded retries, then locates the results
// directory it wrote.
package scanner
