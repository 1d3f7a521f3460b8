// Package kafka carries messaging.Message values over Kafka. Metadata
// travels as record headers; a multi-valued attribute becomes repeated
// headers with the same key.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/retry"
)

// Config configures producers and consumers.
type Config struct {
	Brokers []string

	// Topics maps message subjects to Kafka topics. Subjects without an
	// entry are used as the topic name.
	Topics map[string]string

	// GroupID is the consumer group for Consumer.
	GroupID string

	// Topic is the topic a Consumer reads.
	Topic string
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes messages to Kafka.
type Publisher struct {
	w      writer
	topics map[string]string
}

// NewPublisher creates a Publisher that waits for all in-sync replicas.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.LeastBytes{},
	}
	return &Publisher{w: w, topics: cfg.Topics}, nil
}

func (p *Publisher) topicFor(subject string) string {
	if t, ok := p.topics[subject]; ok {
		return t
	}
	return subject
}

// PublishMsg writes msg to the topic mapped from its subject.
func (p *Publisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	record := kafka.Message{
		Topic:   p.topicFor(msg.Subject),
		Value:   msg.Data,
		Headers: toHeaders(msg.Metadata),
		Time:    time.Now(),
	}
	if err := p.w.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("kafka write %s: %w", record.Topic, err)
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	r      reader
	topic  string
	retry  retry.Policy
	logger *logging.Logger
}

// NewConsumer creates a group consumer for cfg.Topic.
func NewConsumer(cfg Config, policy retry.Policy, logger *logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka: brokers, topic and group id are required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{r: r, topic: cfg.Topic, retry: policy, logger: logger}, nil
}

// Run fetches messages until ctx is done. Each message is handled with the
// retry policy. The offset is committed when handling succeeds or fails with
// a permanent error. Any other failure stops the loop with the record left
// uncommitted, so the group redelivers it.
func (c *Consumer) Run(ctx context.Context, handler messaging.MessageHandler) error {
	for {
		record, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch %s: %w", c.topic, err)
		}

		msg := &messaging.Message{
			Subject:   record.Topic,
			Data:      record.Value,
			Metadata:  fromHeaders(record.Headers),
			Timestamp: record.Time,
		}
		err = retry.Do(ctx, c.retry, func(ctx context.Context) error {
			return handler(ctx, msg)
		}, retry.WithRetryIf(func(err error) bool { return !messaging.IsPermanent(err) }))
		if err != nil {
			if !messaging.IsPermanent(err) {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.ErrorContext(ctx, "kafka message handling failed; leaving offset uncommitted",
					logging.Subject(record.Topic),
					"partition", record.Partition,
					"offset", record.Offset,
					logging.Error(err))
				return fmt.Errorf("kafka handle %s offset %d: %w", c.topic, record.Offset, err)
			}
			c.logger.ErrorContext(ctx, "dropping kafka message after permanent failure",
				logging.Subject(record.Topic),
				"partition", record.Partition,
				"offset", record.Offset,
				logging.Error(err))
		}

		if err := c.r.CommitMessages(ctx, record); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit %s: %w", c.topic, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func toHeaders(md messaging.Metadata) []kafka.Header {
	var headers []kafka.Header
	for k, vals := range md {
		for _, v := range vals {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return headers
}

func fromHeaders(headers []kafka.Header) messaging.Metadata {
	if len(headers) == 0 {
		return nil
	}
	md := make(messaging.Metadata)
	for _, h := range headers {
		md.Add(h.Key, string(h.Value))
	}
	return md
}
