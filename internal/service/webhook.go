package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type WebhookPayload struct {
	Event  string         `json:"event"`
	UserID uint           `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

// WebhookSender posts notifications to an external delivery service.
type WebhookSender struct {
	URL     string
	HTTP    *http.Client
	Timeout time.Duration
}

func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if url == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{URL: url, HTTP: &http.Client{Timeout: timeout}, Timeout: timeout}
}

func (s *WebhookSender) Send(ctx context.Context, payload WebhookPayload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook http status %d", resp.StatusCode)
	}
	return nil
}
