// Package messaging provides broker-neutral message types. Services publish
// and subscribe through these interfaces so the signin and notifier
// services do not depend on a particular transport.
package messaging

import (
	"context"
	"errors"
	"time"
)

// Metadata holds message attributes. Values are multi-valued so list
// attributes such as delivery targets survive every transport.
type Metadata map[string][]string

// Get returns the first value for key, or "".
func (m Metadata) Get(key string) string {
	if vals := m[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Values returns all values for key.
func (m Metadata) Values(key string) []string {
	return m[key]
}

// Set replaces the values for key.
func (m Metadata) Set(key string, values ...string) {
	m[key] = append([]string(nil), values...)
}

// Add appends value to key.
func (m Metadata) Add(key, value string) {
	m[key] = append(m[key], value)
}

// Has reports whether key is present with at least one value.
func (m Metadata) Has(key string) bool {
	return len(m[key]) > 0
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Message is a message received from or sent to a broker.
type Message struct {
	// Subject is the topic/channel the message was published to.
	Subject string

	// Data is the raw payload.
	Data []byte

	// Reply is an optional subject for request/reply.
	Reply string

	// Metadata carries routing attributes out of band from Data.
	Metadata Metadata

	// Timestamp is when the message was published or received.
	Timestamp time.Time
}

// MessageHandler processes a received message. Returning an error asks the
// transport to redeliver when it can; wrap the error with Permanent to
// discard the message instead.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to subject without metadata.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its metadata.
	PublishMsg(ctx context.Context, msg *Message) error

	// Request sends a message and waits up to timeout for a reply.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*Message, error)

	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// Subscribe delivers every message on subject to handler (fan-out).
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe load-balances messages across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)

	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain closes the connection after in-flight messages complete.
	Drain() error

	IsConnected() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
