package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/middleware"
	"github.com/telhawk-systems/cloudguard/notifier/internal/handlers"
)

// NewRouter constructs a ServeMux with the notifier routes registered.
func NewRouter(h *handlers.Handler, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/sns", h.SNS)

	return middleware.RequestID(logging.AccessLog(logger)(mux))
}
