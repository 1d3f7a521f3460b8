package slack

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/cloudguard/common/models"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func payload(reason models.Reason, severity models.Severity, failed int) *models.AlertPayload {
	return &models.AlertPayload{
		ActivityEvent: models.ActivityEvent{
			ID:        "evt-1",
			EventName: models.EventConsoleLogin,
			Detail: models.Detail{
				UserIdentity:    models.UserIdentity{Type: models.IdentityIAMUser, UserName: "alice"},
				SourceIPAddress: "203.0.113.9",
			},
		},
		FailedAttempts: failed,
		Alert:          models.AlertInfo{ID: "alert-1", Reason: reason, Severity: severity},
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name        string
		reason      models.Reason
		severity    models.Severity
		failed      int
		wantTitle   string
		wantColor   string
		wantPretext string
		wantLeading []Field
	}{
		{
			name:      "many failed attempts",
			reason:    models.ReasonManyFailedSignInAttempt,
			severity:  models.SeverityHigh,
			failed:    4,
			wantTitle: TitleManyFailed,
			wantColor: ColorHigh,
			wantLeading: []Field{
				{Title: "User", Value: "alice", Short: true},
				{Title: "Failed attempt", Value: "4", Short: true},
			},
		},
		{
			name:      "no mfa",
			reason:    models.ReasonNoMFAUsed,
			severity:  models.SeverityMedium,
			wantTitle: TitleNoMFA,
			wantColor: ColorMedium,
			wantLeading: []Field{
				{Title: "User", Value: "alice", Short: true},
				{Title: "Event name", Value: "ConsoleLogin", Short: true},
			},
		},
		{
			name:        "root",
			reason:      models.ReasonRootActivity,
			severity:    models.SeverityCritical,
			wantTitle:   TitleRoot,
			wantColor:   ColorCritical,
			wantPretext: "<!here>",
			wantLeading: []Field{
				{Title: "User", Value: "Root", Short: true},
				{Title: "Event name", Value: "ConsoleLogin", Short: true},
			},
		},
		{
			name:        "unknown reason",
			reason:      "Something",
			severity:    "Low",
			wantTitle:   TitleDefault,
			wantColor:   ColorDefault,
			wantLeading: []Field{},
		},
	}

	f := NewFormatter(func() time.Time { return fixedNow })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := f.Format(payload(tt.reason, tt.severity, tt.failed), string(tt.reason), string(tt.severity))

			assert.Equal(t, Username, msg.Username)
			require.Len(t, msg.Attachments, 1)
			att := msg.Attachments[0]
			assert.Equal(t, tt.wantTitle, att.Title)
			assert.Equal(t, tt.wantColor, att.Color)
			assert.Equal(t, tt.wantPretext, att.Pretext)
			assert.Equal(t, "2026-03-04 05:06:07 UTC", att.Footer)
			assert.NotEmpty(t, att.Fallback)

			require.Len(t, att.Fields, len(tt.wantLeading)+3)
			assert.Equal(t, tt.wantLeading, att.Fields[:len(tt.wantLeading)])
			assert.Equal(t, []Field{
				{Title: "IP address", Value: "203.0.113.9", Short: true},
				{Title: "Severity", Value: string(tt.severity), Short: true},
				{Title: "Event ID", Value: "evt-1", Short: true},
			}, att.Fields[len(tt.wantLeading):])
		})
	}
}

func TestFormat_FallsBackToPayloadAlert(t *testing.T) {
	msg := NewFormatter(nil).Format(payload(models.ReasonRootActivity, models.SeverityCritical, 0), "", "")

	att := msg.Attachments[0]
	assert.Equal(t, TitleRoot, att.Title)
	assert.Equal(t, "<!here>", att.Pretext)
}

func TestFormat_CriticalIsCaseInsensitive(t *testing.T) {
	msg := NewFormatter(nil).Format(payload(models.ReasonRootActivity, "critical", 0), "", "critical")
	assert.Equal(t, "<!here>", msg.Attachments[0].Pretext)
	assert.Equal(t, ColorDefault, msg.Attachments[0].Color)
}

func TestMessageJSON(t *testing.T) {
	msg := NewFormatter(func() time.Time { return fixedNow }).
		Format(payload(models.ReasonNoMFAUsed, models.SeverityMedium, 0), "", "")

	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "Cloud Guard", decoded["username"])
	att := decoded["attachments"].([]any)[0].(map[string]any)
	assert.NotContains(t, att, "pretext")
	assert.Equal(t, true, att["fields"].([]any)[0].(map[string]any)["short"])
}
