// Package metricsserver serves the Prometheus scrape endpoint and health
// probes of a running usagestats process.
//
// Routes:
//
//	GET /metrics  Prometheus exposition
//	GET /healthz  liveness
//	GET /stats    bucket statistics as JSON
package metricsserver
