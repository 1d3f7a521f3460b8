// Package slack renders routed sign-in alerts as Slack attachment messages
// and posts them to incoming webhooks.
package slack

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// Username is shown as the sender of every message.
const Username = "Cloud Guard"

// FooterLayout formats the send time in the attachment footer.
const FooterLayout = "2006-01-02 15:04:05 UTC"

// Attachment colours by severity.
const (
	ColorDefault  = "#36a64f"
	ColorMedium   = "#edaf2b"
	ColorHigh     = "#cc5f00"
	ColorCritical = "#cc0000"
)

// Titles by reason.
const (
	TitleManyFailed = "There are many failed sign-in attempts in last one hour"
	TitleNoMFA      = "Detected MFA not used"
	TitleRoot       = "Detected Root activity"
	TitleDefault    = "See detail below"
)

// Message is the webhook body.
type Message struct {
	Username    string       `json:"username"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	Title    string  `json:"title"`
	Color    string  `json:"color"`
	Pretext  string  `json:"pretext,omitempty"`
	Fields   []Field `json:"fields"`
	Footer   string  `json:"footer"`
	Fallback string  `json:"fallback"`
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Formatter builds messages. The zero value uses the wall clock.
type Formatter struct {
	now func() time.Time
}

// NewFormatter returns a Formatter. now may be nil.
func NewFormatter(now func() time.Time) *Formatter {
	return &Formatter{now: now}
}

// Format renders payload. reason and severity come from the routing
// attributes; when either is empty the value inside the payload is used.
func (f *Formatter) Format(payload *models.AlertPayload, reason, severity string) Message {
	if reason == "" {
		reason = string(payload.Alert.Reason)
	}
	if severity == "" {
		severity = string(payload.Alert.Severity)
	}

	title, fields := TitleDefault, []Field(nil)
	user := payload.Detail.UserIdentity.UserName
	switch models.Reason(reason) {
	case models.ReasonManyFailedSignInAttempt:
		title = TitleManyFailed
		fields = append(fields,
			Field{Title: "User", Value: user, Short: true},
			Field{Title: "Failed attempt", Value: strconv.Itoa(payload.FailedAttempts), Short: true},
		)
	case models.ReasonNoMFAUsed:
		title = TitleNoMFA
		fields = append(fields,
			Field{Title: "User", Value: user, Short: true},
			Field{Title: "Event name", Value: payload.EventName, Short: true},
		)
	case models.ReasonRootActivity:
		title = TitleRoot
		fields = append(fields,
			Field{Title: "User", Value: "Root", Short: true},
			Field{Title: "Event name", Value: payload.EventName, Short: true},
		)
	}
	fields = append(fields,
		Field{Title: "IP address", Value: payload.Detail.SourceIPAddress, Short: true},
		Field{Title: "Severity", Value: severity, Short: true},
		Field{Title: "Event ID", Value: payload.ID, Short: true},
	)

	att := Attachment{
		Title:    title,
		Color:    Color(severity),
		Fields:   fields,
		Footer:   f.clock().UTC().Format(FooterLayout),
		Fallback: fmt.Sprintf("[%s] %s (event %s)", severity, title, payload.ID),
	}
	if strings.EqualFold(severity, string(models.SeverityCritical)) {
		att.Pretext = "<!here>"
	}

	return Message{Username: Username, Attachments: []Attachment{att}}
}

func (f *Formatter) clock() time.Time {
	if f == nil || f.now == nil {
		return time.Now()
	}
	return f.now()
}

// Color maps a severity to its attachment colour.
func Color(severity string) string {
	switch models.Severity(severity) {
	case models.SeverityMedium:
		return ColorMedium
	case models.SeverityHigh:
		return ColorHigh
	case models.SeverityCritical:
		return ColorCritical
	}
	return ColorDefault
}
