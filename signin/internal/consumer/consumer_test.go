package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/messaging/memory"
	natsmsg "github.com/telhawk-systems/cloudguard/common/messaging/nats"
	"github.com/telhawk-systems/cloudguard/common/middleware"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/service"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"
)

type call struct {
	raw       string
	transport string
	requestID string
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeProcessor) Process(ctx context.Context, raw []byte, transport string) (*service.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{raw: string(raw), transport: transport, requestID: middleware.GetRequestID(ctx)})
	if f.err != nil {
		return nil, f.err
	}
	return &service.Result{EventID: "e-1", Outcome: service.OutcomeNoAlert}, nil
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantErr       bool
		wantPermanent bool
	}{
		{name: "success"},
		{name: "malformed is permanent", err: fmt.Errorf("%w: bad json", activity.ErrMalformedEvent), wantErr: true, wantPermanent: true},
		{name: "store outage is redelivered", err: fmt.Errorf("put: %w", store.ErrUnavailable), wantErr: true},
		{name: "unknown error is redelivered", err: errors.New("boom"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{err: tt.err}
			h := Handler(p, TransportJetStream, nil)

			err := h(context.Background(), &messaging.Message{Subject: messaging.SubjectSigninEventsRaw, Data: []byte(`{}`)})
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, tt.wantPermanent, messaging.IsPermanent(err))
			require.Len(t, p.calls, 1)
			assert.Equal(t, TransportJetStream, p.calls[0].transport)
		})
	}
}

func TestHandler_RequestID(t *testing.T) {
	p := &fakeProcessor{}
	h := Handler(p, TransportNATS, nil)

	md := messaging.Metadata{}
	md.Set(middleware.HeaderRequestID, "req-42")
	require.NoError(t, h(context.Background(), &messaging.Message{Data: []byte(`{}`), Metadata: md}))

	md = messaging.Metadata{}
	md.Set("Nats-Msg-Id", "msg-7")
	require.NoError(t, h(context.Background(), &messaging.Message{Data: []byte(`{}`), Metadata: md}))

	require.NoError(t, h(context.Background(), &messaging.Message{Data: []byte(`{}`)}))

	require.Len(t, p.calls, 3)
	assert.Equal(t, "req-42", p.calls[0].requestID)
	assert.Equal(t, "msg-7", p.calls[1].requestID)
	assert.NotEmpty(t, p.calls[2].requestID)
}

func TestSubscribe(t *testing.T) {
	bus := memory.NewBus()
	p := &fakeProcessor{}

	sub, err := Subscribe(bus, p, nil)
	require.NoError(t, err)
	assert.Equal(t, messaging.SubjectSigninEventsRaw, sub.Subject())

	require.NoError(t, bus.Publish(context.Background(), messaging.SubjectSigninEventsRaw, []byte(`{"id":"a"}`)))
	require.NoError(t, bus.Publish(context.Background(), messaging.SubjectNotifyAlertsSignin, []byte(`{"id":"b"}`)))

	require.Len(t, p.calls, 1)
	assert.Equal(t, `{"id":"a"}`, p.calls[0].raw)
	assert.Equal(t, TransportNATS, p.calls[0].transport)

	p.err = fmt.Errorf("%w: nope", activity.ErrMalformedEvent)
	require.NoError(t, bus.Publish(context.Background(), messaging.SubjectSigninEventsRaw, []byte(`{}`)))
	errs := bus.HandlerErrors()
	require.Len(t, errs, 1)
	assert.True(t, messaging.IsPermanent(errs[0]))
}

type fakeJetStream struct {
	streams   []string
	consumers []natsmsg.ConsumerConfig
	handler   messaging.MessageHandler
	streamErr error
	stopped   bool
}

func (f *fakeJetStream) CreateOrUpdateStream(ctx context.Context, cfg natsmsg.StreamConfig) (jetstream.Stream, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	f.streams = append(f.streams, cfg.Name)
	return nil, nil
}

func (f *fakeJetStream) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg natsmsg.ConsumerConfig) (jetstream.Consumer, error) {
	f.consumers = append(f.consumers, cfg)
	return nil, nil
}

func (f *fakeJetStream) ConsumeMessages(ctx context.Context, streamName string, cfg natsmsg.ConsumerConfig, handler messaging.MessageHandler) (func(), error) {
	f.handler = handler
	return func() { f.stopped = true }, nil
}

func TestStartJetStream(t *testing.T) {
	js := &fakeJetStream{}
	p := &fakeProcessor{}
	cfg := natsmsg.DefaultConsumerConfig("signin-classifier", messaging.SubjectSigninEventsRaw)

	stop, err := StartJetStream(context.Background(), js, cfg, p, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{natsmsg.SigninEventsStream.Name}, js.streams)
	require.Len(t, js.consumers, 1)
	assert.Equal(t, "signin-classifier", js.consumers[0].Name)

	require.NotNil(t, js.handler)
	require.NoError(t, js.handler(context.Background(), &messaging.Message{Data: []byte(`{}`)}))
	assert.Equal(t, TransportJetStream, p.calls[0].transport)

	stop()
	assert.True(t, js.stopped)
}

func TestStartJetStream_StreamError(t *testing.T) {
	js := &fakeJetStream{streamErr: errors.New("no jetstream")}
	_, err := StartJetStream(context.Background(), js, natsmsg.ConsumerConfig{Name: "c"}, &fakeProcessor{}, nil)
	require.Error(t, err)
	assert.Empty(t, js.consumers)
}

type fakeRunner struct {
	msgs []*messaging.Message
	errs []error
}

func (f *fakeRunner) Run(ctx context.Context, handler messaging.MessageHandler) error {
	for _, m := range f.msgs {
		f.errs = append(f.errs, handler(ctx, m))
	}
	return nil
}

func TestRunKafka(t *testing.T) {
	r := &fakeRunner{msgs: []*messaging.Message{{Subject: "signin-events", Data: []byte(`{}`)}}}
	p := &fakeProcessor{}

	require.NoError(t, RunKafka(context.Background(), r, p, nil))
	require.Len(t, p.calls, 1)
	assert.Equal(t, TransportKafka, p.calls[0].transport)
	assert.NoError(t, r.errs[0])
}
