// Package models defines the records exchanged between the signin and
// notifier services.
package models

// Event names and field values the classifier branches on.
const (
	EventConsoleLogin = "ConsoleLogin"

	LoginSuccess = "Success"
	LoginFailure = "Failure"

	MFAUsedYes = "Yes"
)

// Identity types reported in detail.userIdentity.type.
const (
	IdentityRoot        = "Root"
	IdentityIAMUser     = "IAMUser"
	IdentityAssumedRole = "AssumedRole"
)

// ActivityEvent is one audited action as persisted by the activity store:
// the audit envelope plus the normalized fields used for indexing.
type ActivityEvent struct {
	Version    string   `json:"version,omitempty"`
	ID         string   `json:"id"`
	DetailType string   `json:"detail-type,omitempty"`
	Source     string   `json:"source,omitempty"`
	Account    string   `json:"account,omitempty"`
	Time       string   `json:"time"`
	Region     string   `json:"region,omitempty"`
	Resources  []string `json:"resources,omitempty"`
	Detail     Detail   `json:"detail"`

	// Normalized at ingestion.
	EventName    string `json:"eventName"`
	UserIdentity string `json:"userIdentity"`
	Timestamp    int64  `json:"timestamp"`
	TTL          int64  `json:"ttl"`
}

// Detail is the audit record carried in the envelope.
type Detail struct {
	EventVersion        string               `json:"eventVersion,omitempty"`
	UserIdentity        UserIdentity         `json:"userIdentity"`
	EventTime           string               `json:"eventTime,omitempty"`
	EventSource         string               `json:"eventSource,omitempty"`
	EventName           string               `json:"eventName"`
	AWSRegion           string               `json:"awsRegion,omitempty"`
	SourceIPAddress     string               `json:"sourceIPAddress,omitempty"`
	UserAgent           string               `json:"userAgent,omitempty"`
	ResponseElements    *ResponseElements    `json:"responseElements,omitempty"`
	AdditionalEventData *AdditionalEventData `json:"additionalEventData,omitempty"`
	EventID             string               `json:"eventID,omitempty"`
	EventType           string               `json:"eventType,omitempty"`
	RecipientAccountID  string               `json:"recipientAccountId,omitempty"`
}

type UserIdentity struct {
	Type           string          `json:"type"`
	PrincipalID    string          `json:"principalId,omitempty"`
	ARN            string          `json:"arn,omitempty"`
	AccountID      string          `json:"accountId,omitempty"`
	UserName       string          `json:"userName,omitempty"`
	SessionContext *SessionContext `json:"sessionContext,omitempty"`
}

type SessionContext struct {
	SessionIssuer *SessionIssuer `json:"sessionIssuer,omitempty"`
}

type SessionIssuer struct {
	Type        string `json:"type,omitempty"`
	PrincipalID string `json:"principalId,omitempty"`
	ARN         string `json:"arn,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	UserName    string `json:"userName,omitempty"`
}

type ResponseElements struct {
	ConsoleLogin string `json:"ConsoleLogin,omitempty"`
}

type AdditionalEventData struct {
	LoginTo       string `json:"LoginTo,omitempty"`
	MobileVersion string `json:"MobileVersion,omitempty"`
	MFAUsed       string `json:"MFAUsed,omitempty"`
}

// IdentityType returns detail.userIdentity.type.
func (e *ActivityEvent) IdentityType() string {
	return e.Detail.UserIdentity.Type
}

// LoginOutcome returns detail.responseElements.ConsoleLogin, or "".
func (e *ActivityEvent) LoginOutcome() string {
	if e.Detail.ResponseElements == nil {
		return ""
	}
	return e.Detail.ResponseElements.ConsoleLogin
}

// MFAUsed returns detail.additionalEventData.MFAUsed, or "" when absent.
func (e *ActivityEvent) MFAUsed() string {
	if e.Detail.AdditionalEventData == nil {
		return ""
	}
	return e.Detail.AdditionalEventData.MFAUsed
}

// IsFailedConsoleLogin reports whether the event is a console sign-in whose
// outcome was Failure. This is the predicate the failed-attempt counter
// counts.
func (e *ActivityEvent) IsFailedConsoleLogin() bool {
	return e.EventName == EventConsoleLogin && e.LoginOutcome() == LoginFailure
}

// InWindow reports whether the event belongs to identity and its timestamp
// lies in the closed interval [from, to].
func (e *ActivityEvent) InWindow(identity string, from, to int64) bool {
	return e.UserIdentity == identity && e.Timestamp >= from && e.Timestamp <= to
}
