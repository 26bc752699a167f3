// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/videos/{video_id}/heatmap for a single lookup.
//   - POST /v1/heatmaps/batch for several lookups in one call.
package api
