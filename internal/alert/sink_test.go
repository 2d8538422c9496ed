package alert_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/alert"
)

func TestWebhookSinkPostsAlert(t *testing.T) {
	var got struct {
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
		Severity  string `json:"severity"`
	}
	received := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = true
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := alert.NewWebhookSink(server.URL, nil)
	sink.Notify(context.Background(), alert.SeverityCritical, "allowance module not enabled")

	require.True(t, received)
	assert.Equal(t, "allowance module not enabled", got.Text)
	assert.Equal(t, "critical", got.Severity)

	ts, err := time.Parse(time.RFC3339, got.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

func TestWebhookSinkDeliveryFailureIsNonFatal(t *testing.T) {
	// Unreachable URL: Notify must return without panicking or erroring.
	sink := alert.NewWebhookSink("http://127.0.0.1:1", nil)
	sink.Notify(context.Background(), alert.SeverityWarning, "hello")
}

func TestWebhookSinkRejectedAlertIsNonFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := alert.NewWebhookSink(server.URL, nil)
	sink.Notify(context.Background(), alert.SeverityWarning, "hello")
}

func TestNopSink(t *testing.T) {
	alert.NopSink{}.Notify(context.Background(), alert.SeverityCritical, "dropped")
}
