// Package webhook delivers selector-health events to an operator-configured
// endpoint. Delivery is best effort: a dead endpoint must never stall the
// health monitor or the scrape path.
package webhook

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

	"github.com/cenkalti/backoff/v5"
)

// Event types emitted by the health monitor.
const (
	EventSelectorsDegraded  = "selectors.degraded"
	EventSelectorsRecovered = "selectors.recovered"
	EventLayoutDrifted      = "layout.drifted"
)

// Event is the payload sent to the webhook endpoint.
type Event struct {
	Type        string      `json:"type"`
	Marketplace string      `json:"marketplace"`
	Timestamp   int64       `json:"timestamp"`
	Data        interface{} `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, marketplace string, data interface{}) *Event {
	return &Event{
		Type:        eventType,
		Marketplace: marketplace,
		Timestamp:   time.Now().Unix(),
		Data:        data,
	}
}

// Deliver sends an event synchronously. The request body is signed with
// HMAC-SHA256 when secret is non-empty.
// Header: X-Trawl-Signature: sha256=<hex>
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Trawl-Webhook/1.0")

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Trawl-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// 4xx means the endpoint rejected the payload itself; retrying the
		// same body cannot succeed.
		return backoff.Permanent(fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode))
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying transient
// failures with exponential backoff for up to a minute.
func DeliverAsync(url, secret string, event *Event) {
	go func() {
		op := func() (struct{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return struct{}{}, Deliver(ctx, url, secret, event)
		}

		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = time.Second

		_, err := backoff.Retry(context.Background(), op,
			backoff.WithBackOff(expo),
			backoff.WithMaxTries(4),
			backoff.WithMaxElapsedTime(time.Minute),
		)
		if err != nil {
			slog.Error("webhook delivery failed",
				"url", url, "event", event.Type, "error", err)
			return
		}
		slog.Info("webhook delivered", "url", url, "event", event.Type)
	}()
}
