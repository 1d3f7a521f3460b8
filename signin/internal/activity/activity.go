// Package activity turns raw audit envelopes into normalized activity events.
package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// DefaultRetention is how long a stored event is kept before it expires.
const DefaultRetention = 365 * 24 * time.Hour

// ErrMalformedEvent is returned for envelopes that cannot be normalized.
// Such events are rejected and never retried.
var ErrMalformedEvent = errors.New("malformed event")

// Config controls normalization.
type Config struct {
	IdentityMode Mode          `mapstructure:"identity_mode"`
	Retention    time.Duration `mapstructure:"retention"`
	Sources      []string      `mapstructure:"sources"`
	DetailTypes  []string      `mapstructure:"detail_types"`
}

// DefaultConfig returns the standard normalization settings.
func DefaultConfig() Config {
	return Config{
		IdentityMode: ModeStandard,
		Retention:    DefaultRetention,
		Sources:      DefaultSources(),
		DetailTypes:  DefaultDetailTypes(),
	}
}

// Normalizer parses, filters and normalizes envelopes.
type Normalizer struct {
	mode      Mode
	retention time.Duration
	pattern   Pattern
	now       func() time.Time
}

// NewNormalizer builds a Normalizer from cfg. Zero values fall back to the
// defaults.
func NewNormalizer(cfg Config) *Normalizer {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.IdentityMode == "" {
		cfg.IdentityMode = ModeStandard
	}
	return &Normalizer{
		mode:      cfg.IdentityMode,
		retention: cfg.Retention,
		pattern:   NewPattern(cfg.Sources, cfg.DetailTypes),
		now:       time.Now,
	}
}

// WithClock replaces the clock used to compute the ttl.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Pattern returns the event pattern admitted by the normalizer.
func (n *Normalizer) Pattern() Pattern {
	return n.pattern
}

// Parse decodes one envelope.
func Parse(raw []byte) (*models.ActivityEvent, error) {
	var ev models.ActivityEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &ev, nil
}

// Normalize fills the indexed fields of ev in place: eventName,
// userIdentity, timestamp and ttl. A missing id is replaced by a generated
// one.
func (n *Normalizer) Normalize(ev *models.ActivityEvent) error {
	if strings.TrimSpace(ev.Time) == "" {
		return fmt.Errorf("%w: missing time", ErrMalformedEvent)
	}
	ts, err := time.Parse(time.RFC3339, ev.Time)
	if err != nil {
		return fmt.Errorf("%w: invalid time %q", ErrMalformedEvent, ev.Time)
	}
	if ev.Detail.UserIdentity.Type == "" {
		return fmt.Errorf("%w: missing detail.userIdentity.type", ErrMalformedEvent)
	}

	identity, err := IdentityKey(ev.Detail.UserIdentity, n.mode)
	if err != nil {
		return err
	}

	if ev.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		ev.ID = id.String()
	}

	ev.EventName = ev.Detail.EventName
	ev.UserIdentity = identity
	ev.Timestamp = ts.Unix()
	ev.TTL = n.now().Add(n.retention).Unix()
	return nil
}

// Decode parses raw and normalizes it. admitted is false when the envelope
// does not match the configured pattern, in which case ev is nil and so is
// err.
func (n *Normalizer) Decode(raw []byte) (ev *models.ActivityEvent, admitted bool, err error) {
	ev, err = Parse(raw)
	if err != nil {
		return nil, false, err
	}
	if !n.pattern.Admits(ev) {
		return nil, false, nil
	}
	if err := n.Normalize(ev); err != nil {
		return nil, true, err
	}
	return ev, true, nil
}
