// Package main provides the entry point for usagestats.
//
// usagestats stores aggregated usage snapshots in time buckets of four
// granularities and exposes the store's operations as commands:
//
//   - put, latest, query and best-fit read and write buckets
//   - prune, checkin and time-change run maintenance by hand
//   - backup create, restore and list manage backups
//   - serve runs maintenance periodically and exposes metrics
//
// Usage:
//
//	usagestats [global flags] command [flags]
//	usagestats --root /var/lib/usagestats query -g daily --begin 2024-05-01T00:00:00Z --end 2024-05-08T00:00:00Z
//	usagestats --config /etc/usagestats.yaml serve
package main
