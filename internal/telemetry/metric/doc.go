// Package metric exposes process and storage metrics in Prometheus format.
//
//   - prometheus.go: the registry, maintenance counters and the HTTP handler
//   - collector.go: a collector that reads bucket statistics on scrape
package metric
