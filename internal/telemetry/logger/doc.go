// Package logger builds the process-wide structured logger.
//
// It wraps log/slog:
//
//   - logger.go: handler construction and the dynamic level
//   - context.go: loggers carried in a context, tagged with a run ID
//   - redact.go: masking of key material and other secrets
//
// Components take a *slog.Logger; nothing in the storage engine depends on
// this package directly.
package logger
