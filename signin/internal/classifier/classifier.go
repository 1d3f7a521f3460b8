// Package classifier decides whether a sign-in event raises an alert.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// ErrMissingIdentity is returned when a failed login reaches the classifier
// without a normalized identity key.
var ErrMissingIdentity = errors.New("event has no identity key")

// Counter reports failed console logins for an identity.
type Counter interface {
	Count(ctx context.Context, identity string, now int64, window time.Duration) (int, error)
}

// Rules are the tunable parts of the decision tree.
type Rules struct {
	// Threshold is the failed-login count that must be exceeded.
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
	Channel   string        `mapstructure:"channel"`
	Targets   []string      `mapstructure:"targets"`
}

func DefaultRules() Rules {
	return Rules{
		Threshold: 2,
		Window:    time.Hour,
		Channel:   models.DefaultChannel,
		Targets:   []string{models.TargetSlack},
	}
}

// Classifier evaluates the decision tree. It holds no per-event state.
type Classifier struct {
	counter Counter
	rules   Rules
	newID   func() string
	now     func() time.Time
}

type Option func(*Classifier)

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Classifier) { c.newID = fn }
}

// WithClock overrides the clock stamped on decisions.
func WithClock(fn func() time.Time) Option {
	return func(c *Classifier) { c.now = fn }
}

func New(counter Counter, rules Rules, opts ...Option) *Classifier {
	def := DefaultRules()
	if rules.Window <= 0 {
		rules.Window = def.Window
	}
	if rules.Channel == "" {
		rules.Channel = def.Channel
	}
	if len(rules.Targets) == 0 {
		rules.Targets = def.Targets
	}

	c := &Classifier{
		counter: counter,
		rules:   rules,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the rules in effect.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify returns the alert raised by ev, or nil when none is. The first
// matching branch decides:
//
//  1. Root identity: RootActivity, Critical.
//  2. Any identity other than IAMUser: no alert.
//  3. Event other than ConsoleLogin: no alert.
//  4. Failed login: ManyFailedSignInAttempt, High, when the failed logins in
//     the window ending at the event's own timestamp exceed the threshold.
//  5. Successful login without MFAUsed=Yes: NoMFAUsed, Medium.
//
// A counter error is returned as is and no decision is made.
func (c *Classifier) Classify(ctx context.Context, ev *models.ActivityEvent) (*models.AlertDecision, error) {
	switch ev.IdentityType() {
	case models.IdentityRoot:
		return c.decide(ev, models.ReasonRootActivity, models.SeverityCritical, 0), nil
	case models.IdentityIAMUser:
	default:
		return nil, nil
	}

	if eventName(ev) != models.EventConsoleLogin {
		return nil, nil
	}

	if ev.LoginOutcome() == models.LoginFailure {
		if ev.UserIdentity == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingIdentity, ev.ID)
		}
		count, err := c.counter.Count(ctx, ev.UserIdentity, ev.Timestamp, c.rules.Window)
		if err != nil {
			return nil, err
		}
		if count > c.rules.Threshold {
			return c.decide(ev, models.ReasonManyFailedSignInAttempt, models.SeverityHigh, count), nil
		}
		return nil, nil
	}

	if ev.MFAUsed() == models.MFAUsedYes {
		return nil, nil
	}
	return c.decide(ev, models.ReasonNoMFAUsed, models.SeverityMedium, 0), nil
}

func (c *Classifier) decide(ev *models.ActivityEvent, reason models.Reason, severity models.Severity, failed int) *models.AlertDecision {
	return &models.AlertDecision{
		ID:             c.newID(),
		Reason:         reason,
		Severity:       severity,
		Targets:        slices.Clone(c.rules.Targets),
		Channel:        c.rules.Channel,
		Event:          *ev,
		FailedAttempts: failed,
		CreatedAt:      c.now().UTC(),
	}
}

func eventName(ev *models.ActivityEvent) string {
	if ev.EventName != "" {
		return ev.EventName
	}
	return ev.Detail.EventName
}
