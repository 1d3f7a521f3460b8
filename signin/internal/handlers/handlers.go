package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/telhawk-systems/cloudguard/common/httputil"
	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/router"
	"github.com/telhawk-systems/cloudguard/signin/internal/service"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"
)

// Processor handles one raw envelope.
type Processor interface {
	Process(ctx context.Context, raw []byte, transport string) (*service.Result, error)
	Stats() service.Stats
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	processor    Processor
	store        Pinger
	broker       messaging.Connectivity
	maxBodyBytes int64
	logger       *logging.Logger
}

// NewHandler builds the HTTP handlers. broker may be nil when no message
// broker is in use.
func NewHandler(p Processor, s Pinger, broker messaging.Connectivity, maxBodyBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		processor:    p,
		store:        s,
		broker:       broker,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]any{}
	ready := true

	if err := h.store.Ping(r.Context()); err != nil {
		ready = false
		checks["store"] = map[string]string{"status": "down", "error": err.Error()}
	} else {
		checks["store"] = map[string]string{"status": "up"}
	}

	if h.broker != nil {
		health := messaging.CheckHealth(r.Context(), h.broker)
		if !health.Connected {
			ready = false
		}
		checks["broker"] = health
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// IngestEvent handles POST /v1/events
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		switch {
		case errors.Is(err, httputil.ErrBodyTooLarge):
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, httputil.ErrEmptyBody):
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		}
		return
	}

	result, err := h.processor.Process(r.Context(), raw, "http")
	if err != nil {
		status, msg := errorStatus(err)
		if status >= 500 {
			h.logger.ErrorContext(r.Context(), "event processing failed", logging.Error(err))
		}
		httputil.WriteError(w, status, msg)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, result)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.processor.Stats())
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, activity.ErrMalformedEvent):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "activity store unavailable, retry later"
	case errors.Is(err, router.ErrRoutingFailure):
		return http.StatusServiceUnavailable, "alert could not be routed, retry later"
	}
	return http.StatusInternalServerError, "internal error"
}
