package metricsserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/usagestats-go/internal/telemetry/metric"
)

// DefaultRateLimit is the default request rate per second.
const DefaultRateLimit = 20

// RouterConfig configures the router.
type RouterConfig struct {
	Registry *metric.Registry

	// Stats backs /stats. The route is absent when nil.
	Stats metric.StatsSource

	Logger *slog.Logger

	// RateLimit bounds requests per second across all clients. Zero uses
	// DefaultRateLimit.
	RateLimit int
}

// NewRouter builds the handler with its middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = metric.Global()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", cfg.Registry.Handler())
	mux.HandleFunc("GET /healthz", handleHealth)
	if cfg.Stats != nil {
		mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, cfg.Stats.Stats())
		})
	}

	return Chain(mux,
		Recover(cfg.Logger),
		AccessLog(cfg.Logger),
		RateLimit(cfg.RateLimit),
	)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
