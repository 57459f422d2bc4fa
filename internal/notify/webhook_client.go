// Package notify delivers contact message notifications to an outbound
// webhook.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"studio-site/internal/domain"
)

const maxAttempts = 3

// ErrRejected marks a delivery the webhook refused with a 4xx status.
// Retrying it will not help.
var ErrRejected = errors.New("webhook rejected notification")

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Text  string                      `json:"text"`
	Event *domain.ContactMessageEvent `json:"event"`
}

// WebhookClient posts notifications to a single URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	backoff    time.Duration
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: time.Second,
	}
}

// Notify posts event, retrying transport errors, 429 and 5xx responses up
// to three attempts with linear backoff.
func (c *WebhookClient) Notify(ctx context.Context, event *domain.ContactMessageEvent) error {
	body, err := json.Marshal(Payload{
		Text:  fmt.Sprintf("New contact message from %s <%s>: %s", event.Name, event.Email, event.Preview),
		Event: event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = c.post(ctx, body)
		if lastErr == nil || errors.Is(lastErr, ErrRejected) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	return fmt.Errorf("failed to deliver notification after %d attempts: %w", maxAttempts, lastErr)
}

func (c *WebhookClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
}
