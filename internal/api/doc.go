// Package api hosts the operator HTTP server that runs beside a crawl.
// Routes:
//   - GET /healthz and /readyz for probes; readyz checks the record store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/records/count for the number of stored records.
//   - GET /v1/records/exists?url= to check a single article URL.
//   - GET /v1/stats for the live counters of the running crawl.
package api
