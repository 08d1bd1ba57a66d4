// Package domain defines the core domain models for usagestats.
//
// Domain models are pure value objects without IO dependencies:
//
//   - Granularity: the four aggregation periods (daily, weekly, monthly, yearly)
//   - Snapshot: the aggregated usage record stored in one bucket
//   - Errors: domain error kinds with stable codes
package domain
