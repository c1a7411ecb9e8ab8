package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HTTPSender posts webhook payloads as JSON. When a signing secret is
// configured, each request carries an X-Relay-Signature header holding
// the hex HMAC-SHA256 of the body so receivers can verify origin.
type HTTPSender struct {
	client  *http.Client
	secret  []byte
	logger  *slog.Logger
	timeout time.Duration
}

// NewHTTPSender creates an HTTPSender. A nil client falls back to a
// client with the given timeout; an empty secret disables signing.
func NewHTTPSender(client *http.Client, secret string, timeout time.Duration, logger *slog.Logger) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSender{
		client:  client,
		secret:  []byte(secret),
		logger:  logger.With("component", "webhook_sender"),
		timeout: timeout,
	}
}

// Send posts the payload to the given URL with the caller-supplied
// headers. Non-2xx responses are reported as errors.
func (s *HTTPSender) Send(ctx context.Context, url string, headers map[string]string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(body)
		req.Header.Set("X-Relay-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("webhook delivered",
		"task_id", payload.TaskID,
		"status", payload.Status,
		"http_status", resp.StatusCode)
	return nil
}

var _ Sender = (*HTTPSender)(nil)
