package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookNotifier POSTs alerts as JSON with retry and exponential backoff
type WebhookNotifier struct {
	url        string
	client     *http.Client
	maxRetries uint64
	baseDelay  time.Duration
}

// WebhookOption configures a WebhookNotifier
type WebhookOption func(*WebhookNotifier)

// WithRetries sets the number of retries after the first attempt. Default: 3.
func WithRetries(n int, baseDelay time.Duration) WebhookOption {
	return func(w *WebhookNotifier) {
		if n >= 0 {
			w.maxRetries = uint64(n)
		}
		w.baseDelay = baseDelay
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookNotifier) { w.client = c }
}

// NewWebhookNotifier creates a notifier targeting url
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	w := &WebhookNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// webhookPayload carries the alert plus a preformatted text field for chat integrations
type webhookPayload struct {
	Alert
	Text string `json:"text"`
}

// Notify posts the alert
func (w *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{Alert: alert, Text: formatAlert(alert)})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.baseDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, w.maxRetries), ctx)

	return backoff.Retry(func() error {
		return w.post(ctx, body)
	}, policy)
}

func (w *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("webhook: request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook: status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("webhook: status %d", resp.StatusCode))
	}
}
