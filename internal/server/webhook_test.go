package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWebhookNotifier_NilConfig(t *testing.T) {
	wn := NewWebhookNotifier(nil, nil, quietLogger())
	assert.Nil(t, wn)
}

func TestNewWebhookNotifier_EmptyURLs(t *testing.T) {
	wn := NewWebhookNotifier(&WebhookConfig{URLs: nil}, nil, quietLogger())
	assert.Nil(t, wn)
}

func TestWebhookNotifier_NilReceiver(t *testing.T) {
	// Should not panic
	var wn *WebhookNotifier
	wn.NotifyFragmentUpdated("frag", 2)
	wn.NotifyFragmentDeleted("frag")
	wn.NotifySetUpdated("set", 3)
	wn.Wait()
	assert.NoError(t, wn.Shutdown(context.Background()))
}

func TestWebhookNotifier_DeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var received []WebhookEvent

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	metrics := NewMetrics("webhook_test")
	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, metrics, quietLogger())
	require.NotNil(t, wn)

	wn.NotifyFragmentUpdated("frag-1", 2)
	wn.Wait()
	wn.NotifySetUpdated("set-1", 4)
	wn.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, EventFragmentUpdated, received[0].Event)
	assert.Equal(t, "frag-1", received[0].FragmentID)
	assert.Equal(t, 2, received[0].Version)
	assert.NotEmpty(t, received[0].Timestamp)
	assert.Equal(t, EventTermSetUpdated, received[1].Event)
	assert.Equal(t, "set-1", received[1].SetID)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.WebhookDeliveries.WithLabelValues("delivered")))
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}, RetryDelay: time.Millisecond}, nil, quietLogger())
	wn.NotifyFragmentDeleted("frag-1")
	wn.Wait()

	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer ts.Close()

	metrics := NewMetrics("webhook_fail_test")
	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}, RetryDelay: time.Millisecond}, metrics, quietLogger())
	wn.NotifyFragmentDeleted("frag-1")
	wn.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WebhookDeliveries.WithLabelValues("failed")))
}

func TestWebhookNotifier_ShutdownDrainsCompletedDeliveries(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, nil, quietLogger())
	wn.NotifySetUpdated("set-1", 2)

	require.NoError(t, wn.Shutdown(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_ShutdownAbortsRetryWait(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	metrics := NewMetrics("webhook_shutdown_test")
	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}, RetryDelay: time.Hour}, metrics, quietLogger())
	wn.NotifyFragmentUpdated("frag-1", 2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := wn.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.WebhookDeliveries.WithLabelValues("failed")))
}

func TestWebhookNotifier_ShutdownAbortsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	defer close(release)

	wn := NewWebhookNotifier(&WebhookConfig{URLs: []string{ts.URL}}, nil, quietLogger())
	wn.NotifyFragmentDeleted("frag-1")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.ErrorIs(t, wn.Shutdown(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
