// Package alert delivers operational alerts to a configured webhook.
// Delivery is best-effort: a broken alert channel must never fail a
// refill run on top of whatever already went wrong.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github/chapool/safe-refill/internal/util"
)

// Severity grades an alert for routing on the receiving side.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const deliveryTimeout = 10 * time.Second

// Sink receives alert messages.
type Sink interface {
	// Notify delivers one alert. Failures are logged, never returned.
	Notify(ctx context.Context, severity Severity, text string)
}

type message struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
}

// WebhookSink posts alerts to a webhook URL.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a sink for the given webhook URL. A nil
// httpClient falls back to a client with a delivery timeout.
func NewWebhookSink(url string, httpClient *http.Client) *WebhookSink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: deliveryTimeout}
	}

	return &WebhookSink{
		url:        url,
		httpClient: httpClient,
	}
}

// Notify posts the alert. Delivery failure is logged and swallowed.
func (s *WebhookSink) Notify(ctx context.Context, severity Severity, text string) {
	body, err := json.Marshal(message{
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  string(severity),
	})
	if err != nil {
		util.LogFromContext(ctx).Error().Err(err).Msg("AlertSink: failed to encode alert")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		util.LogFromContext(ctx).Error().Err(err).Msg("AlertSink: failed to build alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		util.LogFromContext(ctx).Error().Err(err).Str("severity", string(severity)).Msg("AlertSink: delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		util.LogFromContext(ctx).Error().
			Int("status", resp.StatusCode).
			Str("severity", string(severity)).
			Msg("AlertSink: webhook rejected alert")
		return
	}

	util.LogFromContext(ctx).Debug().Str("severity", string(severity)).Msg("AlertSink: alert delivered")
}

// NopSink discards alerts. Used when no webhook URL is configured.
type NopSink struct{}

// Notify logs the alert locally and drops it.
func (NopSink) Notify(ctx context.Context, severity Severity, text string) {
	util.LogFromContext(ctx).Info().
		Str("severity", string(severity)).
		Str("text", text).
		Msg("AlertSink: no webhook configured, alert logged only")
}
