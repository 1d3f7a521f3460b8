// Package service runs one audit envelope through persistence,
// classification and routing.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/models"
	"github.com/telhawk-systems/cloudguard/common/retry"
	"github.com/telhawk-systems/cloudguard/signin/internal/activity"
	"github.com/telhawk-systems/cloudguard/signin/internal/metrics"
	"github.com/telhawk-systems/cloudguard/signin/internal/store"
)

// Outcomes reported per envelope.
const (
	OutcomeIgnored = "ignored"
	OutcomeNoAlert = "no_alert"
	OutcomeAlert   = "alert"
)

// Writer persists activity events.
type Writer interface {
	Put(ctx context.Context, ev *models.ActivityEvent) error
}

// Classifier decides whether an event raises an alert.
type Classifier interface {
	Classify(ctx context.Context, ev *models.ActivityEvent) (*models.AlertDecision, error)
}

// Router delivers alert decisions.
type Router interface {
	Route(ctx context.Context, d *models.AlertDecision) error
}

// Result describes how one envelope was handled.
type Result struct {
	EventID  string                `json:"eventId,omitempty"`
	Identity string                `json:"userIdentity,omitempty"`
	Outcome  string                `json:"outcome"`
	Alert    *models.AlertDecision `json:"alert,omitempty"`
}

// Stats are cumulative processing counts since start.
type Stats struct {
	Received int64            `json:"received"`
	Ignored  int64            `json:"ignored"`
	Rejected int64            `json:"rejected"`
	Stored   int64            `json:"stored"`
	NoAlert  int64            `json:"noAlert"`
	Alerts   int64            `json:"alerts"`
	Failed   int64            `json:"failed"`
	ByReason map[string]int64 `json:"byReason"`
	Since    time.Time        `json:"since"`
}

// Processor is safe for concurrent use. It keeps only counters; every
// envelope is handled independently.
type Processor struct {
	normalizer *activity.Normalizer
	store      Writer
	classifier Classifier
	router     Router
	policy     retry.Policy
	logger     *logging.Logger

	received, ignored, rejected, stored atomic.Int64
	noAlert, alerts, failed             atomic.Int64

	reasonMu sync.Mutex
	byReason map[string]int64
	since    time.Time
}

func NewProcessor(n *activity.Normalizer, w Writer, c Classifier, r Router, policy retry.Policy, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Processor{
		normalizer: n,
		store:      w,
		classifier: c,
		router:     r,
		policy:     policy,
		logger:     logger,
		byReason:   make(map[string]int64),
		since:      time.Now().UTC(),
	}
}

// Process handles one raw envelope received over transport. Errors wrap
// activity.ErrMalformedEvent, store.ErrUnavailable or
// router.ErrRoutingFailure. On error the event is neither alerted nor
// acknowledged and may be redelivered.
func (p *Processor) Process(ctx context.Context, raw []byte, transport string) (*Result, error) {
	p.received.Add(1)
	metrics.EventsReceived.WithLabelValues(transport).Inc()

	ev, admitted, err := p.normalizer.Decode(raw)
	if err != nil {
		p.rejected.Add(1)
		metrics.EventsRejected.Inc()
		p.logger.WarnContext(ctx, "rejected malformed event", logging.Error(err))
		return nil, err
	}
	if !admitted {
		p.ignored.Add(1)
		metrics.EventsIgnored.Inc()
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	log := p.logger.With(
		logging.EventID(ev.ID),
		logging.Identity(ev.UserIdentity),
		logging.EventName(ev.EventName),
	)

	if err := p.persist(ctx, ev); err != nil {
		p.failed.Add(1)
		metrics.EventsProcessed.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "failed to store activity", logging.Error(err))
		return nil, err
	}
	p.stored.Add(1)

	start := time.Now()
	decision, err := p.classifier.Classify(ctx, ev)
	metrics.ClassificationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.failed.Add(1)
		metrics.EventsProcessed.WithLabelValues("error").Inc()
		log.ErrorContext(ctx, "classification aborted", logging.Error(err))
		return nil, fmt.Errorf("classify %s: %w", ev.ID, err)
	}

	result := &Result{EventID: ev.ID, Identity: ev.UserIdentity, Outcome: OutcomeNoAlert}
	if decision == nil {
		p.noAlert.Add(1)
		metrics.EventsProcessed.WithLabelValues(OutcomeNoAlert).Inc()
		log.DebugContext(ctx, "no alert")
		return result, nil
	}

	metrics.AlertsTotal.WithLabelValues(string(decision.Reason), string(decision.Severity)).Inc()
	log.InfoContext(ctx, "alert raised",
		logging.AlertID(decision.ID),
		logging.Reason(string(decision.Reason)),
		logging.Severity(string(decision.Severity)),
	)

	if err := p.router.Route(ctx, decision); err != nil {
		p.failed.Add(1)
		metrics.EventsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	p.alerts.Add(1)
	p.reasonMu.Lock()
	p.byReason[string(decision.Reason)]++
	p.reasonMu.Unlock()
	metrics.EventsProcessed.WithLabelValues(OutcomeAlert).Inc()

	result.Outcome = OutcomeAlert
	result.Alert = decision
	return result, nil
}

func (p *Processor) persist(ctx context.Context, ev *models.ActivityEvent) error {
	start := time.Now()
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		return p.store.Put(ctx, ev)
	}, retry.WithRetryIf(func(err error) bool { return errors.Is(err, store.ErrUnavailable) }))
	metrics.StoreDuration.WithLabelValues("put").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("store %s: %w", ev.ID, err)
	}
	return nil
}

// Stats returns a snapshot of the processing counters.
func (p *Processor) Stats() Stats {
	p.reasonMu.Lock()
	byReason := make(map[string]int64, len(p.byReason))
	for k, v := range p.byReason {
		byReason[k] = v
	}
	p.reasonMu.Unlock()

	return Stats{
		Received: p.received.Load(),
		Ignored:  p.ignored.Load(),
		Rejected: p.rejected.Load(),
		Stored:   p.stored.Load(),
		NoAlert:  p.noAlert.Load(),
		Alerts:   p.alerts.Load(),
		Failed:   p.failed.Load(),
		ByReason: byReason,
		Since:    p.since,
	}
}
