// Package api hosts the operator HTTP surface. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs and /api/runs/{run_id} for run history via the
//     store.RunRepository interface.
package api
