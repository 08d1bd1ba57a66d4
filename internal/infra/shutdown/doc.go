// Package shutdown runs named cleanup hooks when the process receives
// SIGINT or SIGTERM, or when its context ends.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("vault", func(ctx context.Context) error { return v.Close() })
//	err := h.Wait(ctx)
package shutdown
