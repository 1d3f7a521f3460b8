package models

import "time"

// Reason explains why an alert was raised.
type Reason string

const (
	ReasonRootActivity            Reason = "RootActivity"
	ReasonNoMFAUsed               Reason = "NoMFAUsed"
	ReasonManyFailedSignInAttempt Reason = "ManyFailedSignInAttempt"
)

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

const (
	// TargetSlack is the delivery target understood by the Slack notifier.
	TargetSlack = "Slack"

	// DefaultChannel is the destination bucket used when none is configured.
	DefaultChannel = "alarm-aws"
)

// Routing attribute keys. Subscribers filter on these and never on the body.
const (
	AttrSeverity = "severity"
	AttrReason   = "reason"
	AttrTargets  = "targets"
	AttrChannel  = "channel"
)

// AlertDecision is the classifier output for one activity event.
type AlertDecision struct {
	ID             string        `json:"id"`
	Reason         Reason        `json:"reason"`
	Severity       Severity      `json:"severity"`
	Targets        []string      `json:"targets"`
	Channel        string        `json:"channel"`
	Event          ActivityEvent `json:"event"`
	FailedAttempts int           `json:"failedAttempts,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// AlertInfo summarises the decision inside a routed payload.
type AlertInfo struct {
	ID        string    `json:"id"`
	Reason    Reason    `json:"reason"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// AlertPayload is the body of a routed alert: the originating event with its
// fields at top level, the failed attempt count when relevant and a summary
// of the decision.
type AlertPayload struct {
	ActivityEvent
	FailedAttempts int       `json:"failedAttempts,omitempty"`
	Alert          AlertInfo `json:"alert"`
}

// Payload builds the routed body for d.
func (d *AlertDecision) Payload() AlertPayload {
	return AlertPayload{
		ActivityEvent:  d.Event,
		FailedAttempts: d.FailedAttempts,
		Alert: AlertInfo{
			ID:        d.ID,
			Reason:    d.Reason,
			Severity:  d.Severity,
			CreatedAt: d.CreatedAt,
		},
	}
}
