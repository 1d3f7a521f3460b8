// Package router publishes alert decisions with their routing attributes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/common/retry"
	"github.com/telhawk-systems/cloudguard/signin/internal/dlq"
	"github.com/telhawk-systems/cloudguard/signin/internal/metrics"
)

// ErrRoutingFailure is returned when an alert could not be published after
// all retries.
var ErrRoutingFailure = errors.New("alert routing failed")

// Publisher is the transport alerts are published through.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *messaging.Message) error
}

// Config controls publishing.
type Config struct {
	Subject string       `mapstructure:"subject"`
	Retry   retry.Policy `mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		Subject: messaging.SubjectNotifyAlertsSignin,
		Retry:   retry.DefaultPolicy(),
	}
}

// Router publishes each decision once. The body is the alert payload and
// the routing attributes travel as message metadata.
type Router struct {
	pub     Publisher
	dlq     dlq.Writer
	subject string
	policy  retry.Policy
	logger  *logging.Logger
	now     func() time.Time
}

func New(pub Publisher, deadLetters dlq.Writer, cfg Config, logger *logging.Logger) *Router {
	if deadLetters == nil {
		deadLetters = dlq.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Subject == "" {
		cfg.Subject = messaging.SubjectNotifyAlertsSignin
	}
	return &Router{
		pub:     pub,
		dlq:     deadLetters,
		subject: cfg.Subject,
		policy:  cfg.Retry,
		logger:  logger,
		now:     time.Now,
	}
}

// Attributes returns the routing attributes of d. The channel attribute is
// omitted when d has no channel, which makes channel-filtered subscribers
// skip the message.
func Attributes(d *models.AlertDecision) messaging.Metadata {
	md := messaging.Metadata{}
	md.Set(models.AttrSeverity, string(d.Severity))
	md.Set(models.AttrReason, string(d.Reason))
	if len(d.Targets) > 0 {
		md.Set(models.AttrTargets, d.Targets...)
	}
	if d.Channel != "" {
		md.Set(models.AttrChannel, d.Channel)
	}
	return md
}

// Route publishes d. When every attempt fails the alert is written to the
// dead-letter queue, logged at error level and ErrRoutingFailure returned.
func (r *Router) Route(ctx context.Context, d *models.AlertDecision) error {
	body, err := json.Marshal(d.Payload())
	if err != nil {
		return fmt.Errorf("encode alert payload: %w", err)
	}

	md := Attributes(d)
	log := r.logger.With(
		logging.AlertID(d.ID),
		logging.EventID(d.Event.ID),
		logging.Reason(string(d.Reason)),
		logging.Severity(string(d.Severity)),
		logging.Channel(d.Channel),
	)
	if len(d.Targets) == 0 || d.Channel == "" {
		log.WarnContext(ctx, "alert is missing routing attributes; subscribers will not receive it",
			"targets", d.Targets)
	}

	attempts := 0
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		attempts++
		return r.pub.PublishMsg(ctx, &messaging.Message{
			Subject:   r.subject,
			Data:      body,
			Metadata:  md.Clone(),
			Timestamp: r.now(),
		})
	},
		retry.WithRetryIf(func(err error) bool { return !messaging.IsPermanent(err) }),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			log.WarnContext(ctx, "alert publish failed, retrying",
				logging.Attempt(attempt), logging.Error(err), "backoff", wait.String())
		}))
	if err == nil {
		metrics.AlertsRouted.Inc()
		log.InfoContext(ctx, "alert routed", logging.Subject(r.subject))
		return nil
	}

	metrics.RoutingFailures.Inc()
	log.ErrorContext(ctx, "alert lost: publish retries exhausted",
		logging.Subject(r.subject), logging.Attempt(attempts), logging.Error(err))

	entry := dlq.Entry{Decision: *d, Error: err.Error(), Attempts: attempts, FailedAt: r.now().UTC()}
	if dlqErr := r.dlq.Write(context.WithoutCancel(ctx), entry); dlqErr != nil {
		metrics.DeadLettered.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "failed to write alert to dead-letter queue", logging.Error(dlqErr))
	} else {
		metrics.DeadLettered.WithLabelValues("ok").Inc()
	}

	return fmt.Errorf("%w: %w", ErrRoutingFailure, err)
}
