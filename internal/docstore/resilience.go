package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// RetryConfig configures retry behavior for transient store contention.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		JitterFraction: 0.25,
	}
}

// isTransient returns true for errors that are worth retrying. The
// transaction function is re-run from scratch, which is safe because the
// failed attempt was rolled back.
func isTransient(err error) bool {
	return err != nil && errors.Is(err, ErrBusy)
}

// isFault reports whether err is a failure of the store rather than a result
// of the caller's transaction function (not found, conflict, ...).
func isFault(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrUnavailable)
}

type retryStore struct {
	Store
	config *RetryConfig
	logger *slog.Logger
}

// WithRetry wraps a Store so that transactions failing with ErrBusy are
// retried with exponential backoff.
func WithRetry(inner Store, cfg *RetryConfig, logger *slog.Logger) Store {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryStore{Store: inner, config: cfg, logger: logger}
}

func (s *retryStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.retry(ctx, "view", func() error { return s.Store.View(ctx, fn) })
}

func (s *retryStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.retry(ctx, "update", func() error { return s.Store.Update(ctx, fn) })
}

// backoff computes the delay for the given attempt with jitter.
func (s *retryStore) backoff(attempt int) time.Duration {
	base := float64(s.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(s.config.MaxBackoff) {
		base = float64(s.config.MaxBackoff)
	}
	jitter := base * s.config.JitterFraction * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *retryStore) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
		if attempt == s.config.MaxRetries {
			break
		}
		delay := s.backoff(attempt)
		s.logger.Debug("store busy, retrying", "op", op, "attempt", attempt+1, "delay", delay)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, s.config.MaxRetries, lastErr)
}

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // failures that open the circuit
	OpenTimeout         time.Duration // time before a half-open probe
}

// DefaultBreakerConfig returns sensible breaker defaults.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:                "docstore",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

type breakerStore struct {
	Store
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps a Store with a circuit breaker. Only store faults count
// as failures; errors produced by transaction functions pass through without
// affecting the breaker. While open, calls fail fast with ErrUnavailable.
func WithBreaker(inner Store, cfg *BreakerConfig, logger *slog.Logger) Store {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerStore{Store: inner, cb: cb}
}

func (s *breakerStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.execute(func() error { return s.Store.View(ctx, fn) })
}

func (s *breakerStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.execute(func() error { return s.Store.Update(ctx, fn) })
}

func (s *breakerStore) execute(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
