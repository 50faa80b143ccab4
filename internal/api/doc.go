// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/harvest to submit a (brand, model) harvest run.
//   - GET /v1/runs and /v1/runs/{run_id} for run progress;
//     POST /v1/runs/{run_id}/cancel to abort an in-flight run.
//   - GET /v1/specs (optional brand/model filters), /v1/specs/{brand}/{model}
//     and /v1/rimpull/{brand}/{model} for reconciled results.
package api
