// Package service delivers routed sign-in alerts to Slack.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/notifier/internal/metrics"
	"github.com/telhawk-systems/cloudguard/notifier/internal/slack"
)

var (
	// ErrInvalidPayload is returned when the body is not an alert payload.
	ErrInvalidPayload = errors.New("invalid alert payload")

	// ErrUnknownChannel is returned when no webhook is configured for the
	// alert's channel.
	ErrUnknownChannel = errors.New("no webhook configured for channel")
)

// Outcome of handling one message.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFiltered  Outcome = "filtered"
)

// Webhooks resolves a channel name to a webhook URL.
type Webhooks interface {
	Lookup(channel string) (string, bool)
}

// Sender posts a rendered message.
type Sender interface {
	Send(ctx context.Context, webhookURL string, msg slack.Message) error
}

// Notifier applies the subscriber filter policy, renders the alert and
// posts it to the channel's webhook.
type Notifier struct {
	policy    messaging.FilterPolicy
	formatter *slack.Formatter
	sender    Sender
	webhooks  Webhooks
	logger    *logging.Logger
}

// New returns a Notifier. A nil policy uses messaging.SlackPolicy.
func New(policy messaging.FilterPolicy, formatter *slack.Formatter, sender Sender, webhooks Webhooks, logger *logging.Logger) *Notifier {
	if policy == nil {
		policy = messaging.SlackPolicy()
	}
	if formatter == nil {
		formatter = slack.NewFormatter(nil)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Notifier{
		policy:    policy,
		formatter: formatter,
		sender:    sender,
		webhooks:  webhooks,
		logger:    logger,
	}
}

// Deliver handles one routed alert. Undecodable bodies, unknown channels
// and webhook rejections are wrapped with messaging.Permanent since
// redelivery cannot fix them.
func (n *Notifier) Deliver(ctx context.Context, msg *messaging.Message) (Outcome, error) {
	if !n.policy.Match(msg.Metadata) {
		metrics.MessagesFiltered.Inc()
		n.logger.DebugContext(ctx, "alert does not match filter policy", logging.Subject(msg.Subject))
		return OutcomeFiltered, nil
	}

	var payload models.AlertPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		metrics.MessagesInvalid.Inc()
		n.logger.ErrorContext(ctx, "failed to decode alert payload", logging.Error(err))
		return "", messaging.Permanent(fmt.Errorf("%w: %w", ErrInvalidPayload, err))
	}

	channel := msg.Metadata.Get(models.AttrChannel)
	reason := msg.Metadata.Get(models.AttrReason)
	severity := msg.Metadata.Get(models.AttrSeverity)
	log := n.logger.With(
		logging.AlertID(payload.Alert.ID),
		logging.EventID(payload.ID),
		logging.Channel(channel),
		logging.Reason(reason),
	)

	webhook, ok := n.webhooks.Lookup(channel)
	if !ok {
		metrics.UnknownChannel.WithLabelValues(channel).Inc()
		log.ErrorContext(ctx, "no webhook configured for channel, dropping alert")
		return "", messaging.Permanent(fmt.Errorf("%w %q", ErrUnknownChannel, channel))
	}

	start := time.Now()
	err := n.sender.Send(ctx, webhook, n.formatter.Format(&payload, reason, severity))
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeliveryFailures.WithLabelValues(channel).Inc()
		log.ErrorContext(ctx, "failed to deliver alert to slack", logging.Error(err))
		if errors.Is(err, slack.ErrRejected) {
			return "", messaging.Permanent(err)
		}
		return "", err
	}

	metrics.Delivered.WithLabelValues(reason, severity).Inc()
	log.InfoContext(ctx, "alert delivered to slack")
	return OutcomeDelivered, nil
}

// Handler adapts Deliver to a messaging.MessageHandler for transport.
func (n *Notifier) Handler(transport string) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		metrics.MessagesReceived.WithLabelValues(transport).Inc()
		_, err := n.Deliver(ctx, msg)
		return err
	}
}
