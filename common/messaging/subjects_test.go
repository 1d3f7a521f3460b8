package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLQSubject(t *testing.T) {
	assert.Equal(t, "signin.dlq.routing", DLQSubject("routing"))
}

func TestMatchSubject(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"notify.alerts.signin", "notify.alerts.signin", true},
		{"notify.alerts.*", "notify.alerts.signin", true},
		{"notify.*", "notify.alerts.signin", false},
		{"notify.>", "notify.alerts.signin", true},
		{"signin.dlq.>", "signin.dlq", false},
		{"signin.events.raw", "signin.events", false},
		{"*.events.raw", "signin.events.raw", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"->"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchSubject(tt.pattern, tt.subject))
		})
	}
}
