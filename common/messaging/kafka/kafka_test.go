package kafka

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/retry"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher_PublishMsg(t *testing.T) {
	w := &fakeWriter{}
	pub := &Publisher{w: w, topics: map[string]string{messaging.SubjectNotifyAlertsSignin: "cloudguard-alerts"}}

	err := pub.PublishMsg(context.Background(), &messaging.Message{
		Subject:  messaging.SubjectNotifyAlertsSignin,
		Data:     []byte(`{"id":"evt-1"}`),
		Metadata: messaging.Metadata{"targets": {"Slack", "slack"}, "channel": {"alarm-aws"}},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	rec := w.msgs[0]
	assert.Equal(t, "cloudguard-alerts", rec.Topic)
	assert.Equal(t, `{"id":"evt-1"}`, string(rec.Value))

	md := fromHeaders(rec.Headers)
	targets := md.Values("targets")
	sort.Strings(targets)
	assert.Equal(t, []string{"Slack", "slack"}, targets)
	assert.Equal(t, "alarm-aws", md.Get("channel"))
}

func TestPublisher_UnmappedSubjectIsTopic(t *testing.T) {
	w := &fakeWriter{}
	pub := &Publisher{w: w}
	require.NoError(t, pub.Publish(context.Background(), "notify.alerts.signin", nil))
	assert.Equal(t, "notify.alerts.signin", w.msgs[0].Topic)
}

func TestPublisher_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	pub := &Publisher{w: &fakeWriter{err: boom}}
	err := pub.Publish(context.Background(), "a", nil)
	assert.ErrorIs(t, err, boom)
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)
}

type fakeReader struct {
	records   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.records) == 0 {
		f.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	rec := f.records[0]
	f.records = f.records[1:]
	return rec, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		records: []kafka.Message{
			{Topic: "alerts", Offset: 1, Value: []byte("ok"), Headers: []kafka.Header{{Key: "channel", Value: []byte("alarm-aws")}}, Time: time.Now()},
			{Topic: "alerts", Offset: 2, Value: []byte("bad")},
			{Topic: "alerts", Offset: 3, Value: []byte("flaky")},
		},
	}
	c := &Consumer{
		r:      r,
		topic:  "alerts",
		retry:  retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond},
		logger: logging.Discard(),
	}

	var seen []string
	flaky := 0
	err := c.Run(ctx, func(_ context.Context, m *messaging.Message) error {
		seen = append(seen, string(m.Data))
		switch string(m.Data) {
		case "bad":
			return messaging.Permanent(errors.New("malformed"))
		case "flaky":
			flaky++
			if flaky == 1 {
				return errors.New("transient")
			}
		case "ok":
			assert.Equal(t, "alarm-aws", m.Metadata.Get("channel"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "bad", "flaky", "flaky"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(Config{Brokers: []string{"localhost:9092"}}, retry.NoRetry(), nil)
	assert.Error(t, err)
}

func TestConsumer_RunLeavesTransientFailureUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		cancel: cancel,
		records: []kafka.Message{
			{Topic: "signin-events", Offset: 6, Value: []byte("ok")},
			{Topic: "signin-events", Offset: 7, Value: []byte("store down")},
			{Topic: "signin-events", Offset: 8, Value: []byte("never reached")},
		},
	}
	c := &Consumer{
		r:      r,
		topic:  "signin-events",
		retry:  retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond},
		logger: logging.Discard(),
	}

	unavailable := errors.New("activity store unavailable")
	calls := 0
	err := c.Run(ctx, func(_ context.Context, m *messaging.Message) error {
		if string(m.Data) == "store down" {
			calls++
			return unavailable
		}
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, unavailable)
	assert.Contains(t, err.Error(), "offset 7")
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{6}, r.committed)
	assert.Len(t, r.records, 1)
}
