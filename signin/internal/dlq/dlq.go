// Package dlq records alerts that could not be routed.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/cloudguard/common/messaging"
	"github.com/telhawk-systems/cloudguard/common/models"
)

// KindRouting is the dead-letter subject suffix for routing failures.
const KindRouting = "routing"

// Entry is the dead-letter record for one lost alert.
type Entry struct {
	Decision models.AlertDecision `json:"decision"`
	Error    string               `json:"error"`
	Attempts int                  `json:"attempts"`
	FailedAt time.Time            `json:"failedAt"`
}

// Writer stores dead-letter entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Publisher is the transport a JetStreamWriter publishes through.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *messaging.Message) error
}

// JetStreamWriter publishes entries to the signin.dlq.routing subject. The
// SIGNIN_DLQ stream retains them for inspection and replay.
type JetStreamWriter struct {
	pub     Publisher
	subject string
}

func NewJetStreamWriter(pub Publisher) *JetStreamWriter {
	return &JetStreamWriter{pub: pub, subject: messaging.DLQSubject(KindRouting)}
}

func (w *JetStreamWriter) Write(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode dead-letter entry: %w", err)
	}

	md := messaging.Metadata{}
	md.Set("alert_id", entry.Decision.ID)
	md.Set(models.AttrReason, string(entry.Decision.Reason))
	md.Set(models.AttrSeverity, string(entry.Decision.Severity))

	return w.pub.PublishMsg(ctx, &messaging.Message{
		Subject:   w.subject,
		Data:      data,
		Metadata:  md,
		Timestamp: entry.FailedAt,
	})
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Write(context.Context, Entry) error { return nil }
