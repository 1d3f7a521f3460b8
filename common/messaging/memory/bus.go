// Package memory is an in-process messaging.Client. Handlers run
// synchronously on the publishing goroutine. Used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telhawk-systems/cloudguard/common/messaging"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory bus closed")

// Bus implements messaging.Client without a broker.
type Bus struct {
	mu        sync.Mutex
	subs      []*subscription
	queues    map[string]int
	published []*messaging.Message
	handleErr []error
	closed    bool
}

var _ messaging.Client = (*Bus)(nil)

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{queues: make(map[string]int)}
}

func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	return b.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

// PublishMsg records msg and hands a copy to every matching subscription.
// Queue subscriptions sharing a group receive it round-robin. Handler
// errors are kept for inspection and not returned to the publisher.
func (b *Bus) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	stored := copyMessage(msg)
	b.published = append(b.published, stored)
	targets := b.targetsLocked(msg.Subject)
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.handler(ctx, copyMessage(stored)); err != nil {
			b.mu.Lock()
			b.handleErr = append(b.handleErr, err)
			b.mu.Unlock()
		}
	}
	return nil
}

func (b *Bus) targetsLocked(subject string) []*subscription {
	var out []*subscription
	groups := make(map[string][]*subscription)
	for _, s := range b.subs {
		if !s.valid || !messaging.MatchSubject(s.subject, subject) {
			continue
		}
		if s.queue == "" {
			out = append(out, s)
			continue
		}
		groups[s.queue] = append(groups[s.queue], s)
	}
	for queue, members := range groups {
		next := b.queues[queue] % len(members)
		b.queues[queue] = next + 1
		out = append(out, members[next])
	}
	return out
}

// Request is not supported in-process.
func (b *Bus) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	return nil, errors.New("memory bus does not support request/reply")
}

func (b *Bus) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return b.QueueSubscribe(subject, "", handler)
}

func (b *Bus) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &subscription{bus: b, subject: subject, queue: queue, handler: handler, valid: true}
	b.subs = append(b.subs, s)
	return s, nil
}

// Published returns copies of every message published so far.
func (b *Bus) Published() []*messaging.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*messaging.Message, len(b.published))
	for i, m := range b.published {
		out[i] = copyMessage(m)
	}
	return out
}

// HandlerErrors returns the errors returned by subscription handlers.
func (b *Bus) HandlerErrors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.handleErr...)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.valid = false
	}
	b.subs = nil
	b.closed = true
	return nil
}

func (b *Bus) Drain() error {
	return b.Close()
}

func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

type subscription struct {
	bus     *Bus
	subject string
	queue   string
	handler messaging.MessageHandler
	valid   bool
}

func (s *subscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.valid = false
	return nil
}

func (s *subscription) Subject() string {
	return s.subject
}

func (s *subscription) IsValid() bool {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.valid
}

func copyMessage(m *messaging.Message) *messaging.Message {
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	c.Metadata = m.Metadata.Clone()
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return &c
}
