// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /admin/crawl, /admin/pause, /admin/resume and /admin/reset to drive
//     the crawl run.
//   - GET /admin/stats, /admin/items and /admin/items/lookup for read-only
//     inspection of the frontier.
package api
