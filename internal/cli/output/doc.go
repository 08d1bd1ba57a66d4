// Package output renders command results for the usagestats CLI.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned tables built from structs and slices
//   - json.go, yaml.go: machine-readable output
//
// Struct fields tagged `table:"millis"` hold Unix milliseconds and are shown
// as UTC timestamps in tables. Fields tagged `table:"-"` are hidden.
package output
