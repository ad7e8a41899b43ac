package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adversit/competitor-intel/monitor/internal/store"
)

// WebhookDispatcher POSTs the payload as JSON to the subscription endpoint.
// Non-2xx responses are an error for the caller to log; there is no retry.
type WebhookDispatcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewWebhookDispatcher(timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, sub *store.Subscription, p *Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: status %d", sub.Endpoint, resp.StatusCode)
	}
	d.logger.Debug("webhook delivered", "endpoint", sub.Endpoint, "status", resp.StatusCode)
	return nil
}
