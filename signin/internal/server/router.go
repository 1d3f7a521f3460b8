package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/middleware"
	"github.com/telhawk-systems/cloudguard/signin/internal/handlers"
)

// NewRouter constructs a ServeMux with the signin API routes registered.
func NewRouter(h *handlers.Handler, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/events", h.IngestEvent)
	mux.HandleFunc("GET /v1/stats", h.GetStats)

	return middleware.RequestID(logging.AccessLog(logger)(mux))
}
