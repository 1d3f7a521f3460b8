package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{"service", Service("signin"), FieldService, "signin"},
		{"event id", EventID("evt-1"), FieldEventID, "evt-1"},
		{"alert id", AlertID("alr-1"), FieldAlertID, "alr-1"},
		{"identity", Identity("Root#Root"), FieldIdentity, "Root#Root"},
		{"event name", EventName("ConsoleLogin"), FieldEventName, "ConsoleLogin"},
		{"reason", Reason("NoMFAUsed"), FieldReason, "NoMFAUsed"},
		{"severity", Severity("Medium"), FieldSeverity, "Medium"},
		{"channel", Channel("alarm-aws"), FieldChannel, "alarm-aws"},
		{"subject", Subject("notify.alerts.signin"), FieldSubject, "notify.alerts.signin"},
		{"backend", Backend("redis"), FieldBackend, "redis"},
		{"ip", IP("10.0.0.1"), FieldIP, "10.0.0.1"},
		{"error", Error(errors.New("store down")), FieldError, "store down"},
		{"nil error", Error(nil), FieldError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.value {
				t.Errorf("expected value %q, got %q", tt.value, tt.attr.Value.String())
			}
		})
	}
}

func TestIntFieldHelpers(t *testing.T) {
	if got := Count(4).Value.Int64(); got != 4 {
		t.Errorf("expected count 4, got %d", got)
	}
	if got := Attempt(2).Value.Int64(); got != 2 {
		t.Errorf("expected attempt 2, got %d", got)
	}
	if got := Status(503).Value.Int64(); got != 503 {
		t.Errorf("expected status 503, got %d", got)
	}
	if got := Duration(120).Value.Int64(); got != 120 {
		t.Errorf("expected duration 120, got %d", got)
	}
}
