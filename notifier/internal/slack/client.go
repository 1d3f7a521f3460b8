package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telhawk-systems/cloudguard/common/logging"
	"github.com/telhawk-systems/cloudguard/common/retry"
)

// DefaultTimeout bounds a single webhook request.
const DefaultTimeout = 10 * time.Second

// ErrRejected is returned when the webhook answers with a 4xx status.
// Such requests are not retried.
var ErrRejected = errors.New("slack webhook rejected message")

// Client posts messages to Slack incoming webhooks.
type Client struct {
	http   *http.Client
	policy retry.Policy
	logger *logging.Logger
}

// NewClient returns a Client. A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration, policy retry.Policy, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		policy: policy,
		logger: logger,
	}
}

// Send posts msg to webhookURL. Network errors and 5xx responses are
// retried with the client's policy.
func (c *Client) Send(ctx context.Context, webhookURL string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.post(ctx, webhookURL, body)
	},
		retry.WithRetryIf(func(err error) bool { return !errors.Is(err, ErrRejected) }),
		retry.WithNotify(func(attempt int, err error, wait time.Duration) {
			c.logger.WarnContext(ctx, "slack webhook attempt failed",
				logging.Attempt(attempt), "retry_in", wait.String(), logging.Error(err))
		}),
	)
}

func (c *Client) post(ctx context.Context, webhookURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	return fmt.Errorf("slack webhook returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
}
