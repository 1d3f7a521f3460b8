package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/messaging/memory"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/notifier/internal/channels"
	"github.com/telhawk-systems/cloudguard/notifier/internal/slack"
)

type sent struct {
	url string
	msg slack.Message
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, webhookURL string, msg slack.Message) error {
	f.sent = append(f.sent, sent{url: webhookURL, msg: msg})
	return f.err
}

func alertMessage(t *testing.T, md messaging.Metadata) *messaging.Message {
	t.Helper()
	body, err := json.Marshal(models.AlertPayload{
		ActivityEvent: models.ActivityEvent{
			ID:        "evt-9",
			EventName: models.EventConsoleLogin,
			Detail: models.Detail{
				UserIdentity:    models.UserIdentity{Type: models.IdentityIAMUser, UserName: "bob"},
				SourceIPAddress: "198.51.100.4",
			},
		},
		FailedAttempts: 3,
		Alert:          models.AlertInfo{ID: "a-1", Reason: models.ReasonManyFailedSignInAttempt, Severity: models.SeverityHigh},
	})
	require.NoError(t, err)
	return &messaging.Message{Subject: messaging.SubjectNotifyAlertsSignin, Data: body, Metadata: md}
}

func slackMetadata(channel string) messaging.Metadata {
	md := messaging.Metadata{}
	md.Set(models.AttrReason, string(models.ReasonManyFailedSignInAttempt))
	md.Set(models.AttrSeverity, string(models.SeverityHigh))
	md.Set(models.AttrTargets, models.TargetSlack)
	if channel != "" {
		md.Set(models.AttrChannel, channel)
	}
	return md
}

func newNotifier(sender Sender) *Notifier {
	hooks := channels.NewRegistry(map[string]string{models.DefaultChannel: "https://hooks.example/alarm"})
	formatter := slack.NewFormatter(func() time.Time { return time.Unix(0, 0) })
	return New(nil, formatter, sender, hooks, nil)
}

func TestDeliver(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)

	outcome, err := n.Deliver(context.Background(), alertMessage(t, slackMetadata(models.DefaultChannel)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://hooks.example/alarm", sender.sent[0].url)
	att := sender.sent[0].msg.Attachments[0]
	assert.Equal(t, slack.TitleManyFailed, att.Title)
	assert.Equal(t, slack.ColorHigh, att.Color)
	assert.Equal(t, "3", att.Fields[1].Value)
}

func TestDeliver_FilterPolicy(t *testing.T) {
	tests := []struct {
		name string
		md   func() messaging.Metadata
	}{
		{name: "no channel", md: func() messaging.Metadata { return slackMetadata("") }},
		{name: "other target", md: func() messaging.Metadata {
			md := slackMetadata(models.DefaultChannel)
			md.Set(models.AttrTargets, "PagerDuty")
			return md
		}},
		{name: "no attributes", md: func() messaging.Metadata { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			outcome, err := newNotifier(sender).Deliver(context.Background(), alertMessage(t, tt.md()))
			require.NoError(t, err)
			assert.Equal(t, OutcomeFiltered, outcome)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestDeliver_LowercaseTargetAndMultipleTargets(t *testing.T) {
	md := slackMetadata(models.DefaultChannel)
	md.Set(models.AttrTargets, "Email", "slack")

	sender := &fakeSender{}
	outcome, err := newNotifier(sender).Deliver(context.Background(), alertMessage(t, md))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
}

func TestDeliver_Failures(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		msg := &messaging.Message{Data: []byte("{"), Metadata: slackMetadata(models.DefaultChannel)}
		_, err := newNotifier(&fakeSender{}).Deliver(context.Background(), msg)
		require.ErrorIs(t, err, ErrInvalidPayload)
		assert.True(t, messaging.IsPermanent(err))
	})

	t.Run("unknown channel", func(t *testing.T) {
		sender := &fakeSender{}
		_, err := newNotifier(sender).Deliver(context.Background(), alertMessage(t, slackMetadata("alarm-gcp")))
		require.ErrorIs(t, err, ErrUnknownChannel)
		assert.True(t, messaging.IsPermanent(err))
		assert.Empty(t, sender.sent)
	})

	t.Run("webhook rejected", func(t *testing.T) {
		sender := &fakeSender{err: slack.ErrRejected}
		_, err := newNotifier(sender).Deliver(context.Background(), alertMessage(t, slackMetadata(models.DefaultChannel)))
		require.ErrorIs(t, err, slack.ErrRejected)
		assert.True(t, messaging.IsPermanent(err))
	})

	t.Run("webhook unavailable", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("connection refused")}
		_, err := newNotifier(sender).Deliver(context.Background(), alertMessage(t, slackMetadata(models.DefaultChannel)))
		require.Error(t, err)
		assert.False(t, messaging.IsPermanent(err))
	})
}

func TestHandler_OverBus(t *testing.T) {
	sender := &fakeSender{}
	n := newNotifier(sender)
	bus := memory.NewBus()

	_, err := bus.QueueSubscribe(messaging.SubjectNotifyAlertsSignin, messaging.QueueSlackNotifier, n.Handler("nats"))
	require.NoError(t, err)

	require.NoError(t, bus.PublishMsg(context.Background(), alertMessage(t, slackMetadata(models.DefaultChannel))))
	require.NoError(t, bus.PublishMsg(context.Background(), alertMessage(t, slackMetadata("nowhere"))))

	assert.Len(t, sender.sent, 1)
	errs := bus.HandlerErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownChannel)
}
