// Package client talks to the signin service HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// Result mirrors the signin service response to POST /v1/events.
type Result struct {
	EventID  string                `json:"eventId,omitempty" yaml:"eventId,omitempty"`
	Identity string                `json:"userIdentity,omitempty" yaml:"userIdentity,omitempty"`
	Outcome  string                `json:"outcome" yaml:"outcome"`
	Alert    *models.AlertDecision `json:"alert,omitempty" yaml:"alert,omitempty"`
}

// Stats mirrors GET /v1/stats.
type Stats struct {
	Received int64            `json:"received" yaml:"received"`
	Ignored  int64            `json:"ignored" yaml:"ignored"`
	Rejected int64            `json:"rejected" yaml:"rejected"`
	Stored   int64            `json:"stored" yaml:"stored"`
	NoAlert  int64            `json:"noAlert" yaml:"noAlert"`
	Alerts   int64            `json:"alerts" yaml:"alerts"`
	Failed   int64            `json:"failed" yaml:"failed"`
	ByReason map[string]int64 `json:"byReason" yaml:"byReason"`
	Since    time.Time        `json:"since" yaml:"since"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signin returned status %d: %s", e.StatusCode, e.Message)
}

type SigninClient struct {
	baseURL string
	client  *http.Client
}

func NewSigninClient(baseURL string, timeout time.Duration) *SigninClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SigninClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// SendEvent posts one raw envelope.
func (c *SigninClient) SendEvent(ctx context.Context, envelope []byte) (*Result, error) {
	var result Result
	if err := c.do(ctx, http.MethodPost, "/v1/events", envelope, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendActivity marshals ev and posts it.
func (c *SigninClient) SendActivity(ctx context.Context, ev *models.ActivityEvent) (*Result, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.SendEvent(ctx, body)
}

func (c *SigninClient) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *SigninClient) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
