package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Webhook event names.
const (
	EventFragmentUpdated = "fragment.updated"
	EventFragmentDeleted = "fragment.deleted"
	EventTermSetUpdated  = "termset.updated"
)

// WebhookEvent represents the payload sent to webhook URLs.
type WebhookEvent struct {
	Event      string `json:"event"`
	FragmentID string `json:"fragmentId,omitempty"`
	SetID      string `json:"setId,omitempty"`
	Version    int    `json:"version,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WebhookConfig holds the list of configured webhook URLs.
type WebhookConfig struct {
	URLs []string
	// RetryDelay is the base delay between delivery attempts.
	RetryDelay time.Duration
}

// WebhookNotifier sends HTTP POST notifications to configured webhook URLs.
type WebhookNotifier struct {
	config  *WebhookConfig
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
	wg      sync.WaitGroup

	// ctx is cancelled by Shutdown to abort pending deliveries.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, metrics *Metrics, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// NotifyFragmentUpdated announces that a fragment reached a new version, so
// readers can be asked to acknowledge it again.
func (wn *WebhookNotifier) NotifyFragmentUpdated(fragmentID string, version int) {
	wn.notify(&WebhookEvent{Event: EventFragmentUpdated, FragmentID: fragmentID, Version: version})
}

// NotifyFragmentDeleted announces a fragment delete.
func (wn *WebhookNotifier) NotifyFragmentDeleted(fragmentID string) {
	wn.notify(&WebhookEvent{Event: EventFragmentDeleted, FragmentID: fragmentID})
}

// NotifySetUpdated announces a new term set version.
func (wn *WebhookNotifier) NotifySetUpdated(setID string, version int) {
	wn.notify(&WebhookEvent{Event: EventTermSetUpdated, SetID: setID, Version: version})
}

// notify runs asynchronously and does not block the caller.
func (wn *WebhookNotifier) notify(event *WebhookEvent) {
	if wn == nil {
		return
	}
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)

	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.send(event)
	}()
}

// Wait blocks until every pending delivery has finished.
func (wn *WebhookNotifier) Wait() {
	if wn == nil {
		return
	}
	wn.wg.Wait()
}

// Shutdown waits for pending deliveries until ctx is done, then aborts the
// remaining ones and waits for them to return. It returns ctx's error if
// deliveries had to be aborted.
func (wn *WebhookNotifier) Shutdown(ctx context.Context) error {
	if wn == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		wn.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wn.cancel()
		return nil
	case <-ctx.Done():
		wn.cancel()
		<-done
		return ctx.Err()
	}
}

// send delivers the webhook event to all configured URLs.
func (wn *WebhookNotifier) send(event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(wn.ctx, url, data); err != nil {
			wn.record("failed")
			wn.logger.Warn("webhook: delivery failed", "url", url, "event", event.Event, "error", err)
		} else {
			wn.record("delivered")
			wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event)
		}
	}
}

func (wn *WebhookNotifier) record(result string) {
	if wn.metrics != nil {
		wn.metrics.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}

// post sends a single webhook POST with retry (up to 2 retries).
func (wn *WebhookNotifier) post(ctx context.Context, url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*wn.config.RetryDelay); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "douit-server/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr // don't retry 4xx
		}
	}

	return lastErr
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
