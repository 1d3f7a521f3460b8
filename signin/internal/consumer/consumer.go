// Package consumer feeds envelopes arriving over a message broker into the
// signin processor.
package consumer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/middleware"
	natsmsg "github.com/telhawk-systems/cloudguard/common/messaging/nats"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/service"
)

// Transport names reported to the processor.
const (
	TransportNATS      = "nats"
	TransportJetStream = "jetstream"
	TransportKafka     = "kafka"
)

// Processor handles one raw envelope.
type Processor interface {
	Process(ctx context.Context, raw []byte, transport string) (*service.Result, error)
}

// Handler adapts p to a messaging.MessageHandler. Malformed envelopes are
// marked permanent so brokers stop redelivering them; any other failure is
// returned as-is and left to the transport's redelivery.
func Handler(p Processor, transport string, logger *logging.Logger) messaging.MessageHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(ctx context.Context, msg *messaging.Message) error {
		ctx = middleware.WithRequestID(ctx, requestID(msg))

		result, err := p.Process(ctx, msg.Data, transport)
		if err != nil {
			if errors.Is(err, activity.ErrMalformedEvent) {
				logger.WarnContext(ctx, "discarding malformed envelope",
					logging.Subject(msg.Subject), logging.Error(err))
				return messaging.Permanent(err)
			}
			logger.ErrorContext(ctx, "envelope processing failed",
				logging.Subject(msg.Subject), logging.Error(err))
			return err
		}

		logger.DebugContext(ctx, "envelope processed",
			logging.EventID(result.EventID), "outcome", result.Outcome)
		return nil
	}
}

func requestID(msg *messaging.Message) string {
	if id := msg.Metadata.Get(middleware.HeaderRequestID); id != "" {
		return id
	}
	if id := msg.Metadata.Get("Nats-Msg-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// Subscribe joins the signin-workers queue group so events published on
// signin.events.raw are shared across replicas.
func Subscribe(sub messaging.Subscriber, p Processor, logger *logging.Logger) (messaging.Subscription, error) {
	return sub.QueueSubscribe(messaging.SubjectSigninEventsRaw, messaging.QueueSigninWorkers,
		Handler(p, TransportNATS, logger))
}

// JetStream is the subset of natsmsg.JetStreamClient the durable consumer
// needs.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg natsmsg.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg natsmsg.ConsumerConfig) (jetstream.Consumer, error)
	ConsumeMessages(ctx context.Context, streamName string, cfg natsmsg.ConsumerConfig, handler messaging.MessageHandler) (func(), error)
}

// StartJetStream ensures the signin events stream and durable consumer
// exist, then starts consuming. The returned function stops consumption.
func StartJetStream(ctx context.Context, js JetStream, cfg natsmsg.ConsumerConfig, p Processor, logger *logging.Logger) (func(), error) {
	if _, err := js.CreateOrUpdateStream(ctx, natsmsg.SigninEventsStream); err != nil {
		return nil, err
	}
	if _, err := js.CreateOrUpdateConsumer(ctx, natsmsg.SigninEventsStream.Name, cfg); err != nil {
		return nil, err
	}
	return js.ConsumeMessages(ctx, natsmsg.SigninEventsStream.Name, cfg, Handler(p, TransportJetStream, logger))
}

// Runner consumes until ctx is done.
type Runner interface {
	Run(ctx context.Context, handler messaging.MessageHandler) error
}

// RunKafka blocks consuming envelopes from r.
func RunKafka(ctx context.Context, r Runner, p Processor, logger *logging.Logger) error {
	return r.Run(ctx, Handler(p, TransportKafka, logger))
}
