package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
)

// JetStreamClient extends Client with durable streams and consumers.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a durable pull consumer.
type ConsumerConfig struct {
	Name          string
	FilterSubject string

	// AckWait is how long a delivery may stay unacknowledged before the
	// server redelivers it.
	AckWait time.Duration

	// MaxDeliver caps delivery attempts per message.
	MaxDeliver int

	MaxAckPending int

	// NakDelay is the redelivery delay after a handler error.
	NakDelay time.Duration
}

// DefaultConsumerConfig returns the consumer settings used for event
// ingestion: three deliveries, five seconds apart.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 100,
		NakDelay:      5 * time.Second,
	}
}

// Streams used by the signin service.
var (
	// SigninEventsStream queues raw audit envelopes for classification.
	SigninEventsStream = StreamConfig{
		Name:      "SIGNIN_EVENTS",
		Subjects:  []string{"signin.events.>"},
		MaxAge:    24 * time.Hour,
		MaxBytes:  512 * 1024 * 1024,
		MaxMsgs:   1_000_000,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}

	// SigninDLQStream keeps alerts that could not be routed.
	SigninDLQStream = StreamConfig{
		Name:      "SIGNIN_DLQ",
		Subjects:  []string{messaging.SubjectSigninDLQPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024,
		MaxMsgs:   100_000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}
)

// NewJetStreamClient connects and creates a JetStream context.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{Client: client, js: js}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer on streamName.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// PublishMsg publishes msg, headers included, and waits for the stream
// acknowledgment. It shadows Client.PublishMsg so a JetStreamClient used as
// a publisher gets persistence.
func (c *JetStreamClient) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if _, err := c.js.PublishMsg(ctx, toNatsMsg(msg)); err != nil {
		return fmt.Errorf("jetstream publish %s: %w", msg.Subject, err)
	}
	return nil
}

// ConsumeMessages runs handler for every message delivered to consumerName.
// Successful messages are acked, permanent failures are terminated and
// anything else is nak'd with cfg.NakDelay so the server redelivers it.
// The returned function stops consumption.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName string, cfg ConsumerConfig, handler messaging.MessageHandler) (func(), error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", cfg.Name, err)
	}

	nakDelay := cfg.NakDelay
	if nakDelay <= 0 {
		nakDelay = 5 * time.Second
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		m := &messaging.Message{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Metadata:  fromHeader(msg.Headers()),
			Timestamp: time.Now(),
		}
		if meta, err := msg.Metadata(); err == nil {
			m.Timestamp = meta.Timestamp
		}

		if err := handler(consumeCtx, m); err != nil {
			if messaging.IsPermanent(err) {
				c.logger.Warn("terminating message", logging.Subject(m.Subject), logging.Error(err))
				_ = msg.Term()
				return
			}
			_ = msg.NakWithDelay(nakDelay)
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}
