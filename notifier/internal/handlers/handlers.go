package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/telhawk-systems/cloudguard/common/httputil"
	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/messaging/sns"
	"github.com/telhawk-systems/cloudguard/notifier/internal/metrics"
	"github.com/telhawk-systems/cloudguard/notifier/internal/service"
)

// Deliverer handles one routed alert.
type Deliverer interface {
	Deliver(ctx context.Context, msg *messaging.Message) (service.Outcome, error)
}

// Confirmer completes an SNS subscription handshake.
type Confirmer interface {
	Confirm(ctx context.Context, subscribeURL string) error
}

// HTTPConfirmer confirms by fetching the SubscribeURL.
type HTTPConfirmer struct {
	Client *http.Client
}

func (c HTTPConfirmer) Confirm(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(subscribeURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid SubscribeURL %q", subscribeURL)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm subscription: HTTP %d", resp.StatusCode)
	}
	return nil
}

type Handler struct {
	deliverer    Deliverer
	confirmer    Confirmer
	maxBodyBytes int64
	logger       *logging.Logger
}

// NewHandler builds the notifier HTTP handlers. confirmer may be nil, in
// which case subscription confirmations are only logged.
func NewHandler(d Deliverer, confirmer Confirmer, maxBodyBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		deliverer:    d,
		confirmer:    confirmer,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SNS handles POST /v1/sns, the HTTP(S) subscription endpoint. Permanent
// delivery failures are acknowledged with 200 so SNS does not retry them;
// transient ones return 503.
func (h *Handler) SNS(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httputil.WriteError(w, status, err.Error())
		return
	}

	env, err := sns.ParseEnvelope(body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	log := h.logger.With("topic_arn", env.TopicARN, "message_id", env.MessageID)

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		log.InfoContext(ctx, "sns subscription confirmation received", "subscribe_url", env.SubscribeURL)
		if h.confirmer != nil {
			if err := h.confirmer.Confirm(ctx, env.SubscribeURL); err != nil {
				log.ErrorContext(ctx, "sns subscription confirmation failed", logging.Error(err))
				httputil.WriteError(w, http.StatusBadGateway, "subscription confirmation failed")
				return
			}
			log.InfoContext(ctx, "sns subscription confirmed")
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "confirmation received"})

	case sns.TypeUnsubscribeConfirmation:
		log.WarnContext(ctx, "sns subscription removed")
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})

	case sns.TypeNotification:
		metrics.MessagesReceived.WithLabelValues("sns").Inc()
		msg, err := env.ToMessage()
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		outcome, err := h.deliverer.Deliver(ctx, msg)
		switch {
		case err == nil:
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
		case messaging.IsPermanent(err):
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "discarded", "error": err.Error()})
		default:
			httputil.WriteError(w, http.StatusServiceUnavailable, "delivery failed, retry later")
		}

	default:
		httputil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported message type %q", env.Type))
	}
}
