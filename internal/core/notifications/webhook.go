package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const SignatureHeader = "X-Ledger-Signature"

// WebhookSink POSTs alerts as JSON, signed with HMAC-SHA256 over the body.
type WebhookSink struct {
	url      string
	secret   []byte
	client   *http.Client
	attempts int
	backoff  time.Duration
}

type WebhookOption func(*WebhookSink)

// WithRetry makes Send try up to attempts times, waiting attempt*backoff
// between tries.
func WithRetry(attempts int, backoff time.Duration) WebhookOption {
	return func(w *WebhookSink) {
		w.attempts = max(attempts, 1)
		w.backoff = backoff
	}
}

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookSink) { w.client = c }
}

func NewWebhookSink(url, secret string, opts ...WebhookOption) *WebhookSink {
	w := &WebhookSink{
		url:      url,
		secret:   []byte(secret),
		client:   &http.Client{Timeout: 5 * time.Second},
		attempts: 3,
		backoff:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookSink) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if lastErr = w.post(ctx, body); lastErr == nil {
			return nil
		}
		slog.Warn("alert webhook failed", "alert_id", alert.ID, "attempt", attempt, "error", lastErr)

		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * w.backoff):
		}
	}
	return fmt.Errorf("webhook gave up after %d attempts: %w", w.attempts, lastErr)
}

func (w *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Ledger-Alerts/1.0")
	req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("receiver returned status %d", resp.StatusCode)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value in constant time.
func Verify(secret, body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(want, mac.Sum(nil))
}
