package messaging

import (
	"context"
	"time"
)

// HealthStatus is the health of a messaging connection as reported on
// readiness endpoints.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// Connectivity is the subset of Client needed for a health check.
type Connectivity interface {
	IsConnected() bool
}

// CheckHealth reports whether c is connected. Latency covers the check
// itself.
func CheckHealth(ctx context.Context, c Connectivity) HealthStatus {
	start := time.Now()
	status := HealthStatus{}

	if c == nil {
		status.Error = "client is nil"
		return status
	}
	if err := ctx.Err(); err != nil {
		status.Error = err.Error()
		return status
	}

	status.Connected = c.IsConnected()
	status.Latency = time.Since(start)
	if !status.Connected {
		status.Error = "not connected to message broker"
	}
	return status
}
