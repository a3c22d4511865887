package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts events as JSON to a configured URL. Delivery is best effort:
// a failed post is retried with linear backoff, then dropped by the caller.
type Webhook struct {
	URL     string
	HTTP    *http.Client
	Retries int
	Backoff time.Duration
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		URL:     url,
		HTTP:    &http.Client{Timeout: timeout},
		Retries: 2,
		Backoff: 500 * time.Millisecond,
	}
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	if w == nil || w.URL == "" {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var lastErr error
	for attempt := 0; attempt <= w.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.Backoff * time.Duration(attempt)):
			}
		}
		if lastErr = w.post(ctx, b); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook http status %d", resp.StatusCode)
	}
	return nil
}
