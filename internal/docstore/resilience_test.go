package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n transactions with err.
type flakyStore struct {
	failures int
	err      error
	calls    int
}

func (f *flakyStore) run() error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyStore) View(_ context.Context, _ func(Tx) error) error   { return f.run() }
func (f *flakyStore) Update(_ context.Context, _ func(Tx) error) error { return f.run() }
func (f *flakyStore) Ping(_ context.Context) error                     { return nil }
func (f *flakyStore) Close() error                                     { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestWithRetry_RetriesBusy(t *testing.T) {
	inner := &flakyStore{failures: 2, err: fmt.Errorf("%w: locked", ErrBusy)}
	st := WithRetry(inner, fastRetry(), testLogger())

	err := st.Update(context.Background(), func(Tx) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	inner := &flakyStore{failures: 10, err: fmt.Errorf("%w: locked", ErrBusy)}
	st := WithRetry(inner, fastRetry(), testLogger())

	err := st.View(context.Background(), func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 4, inner.calls)
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	inner := &flakyStore{failures: 10, err: ErrNotFound}
	st := WithRetry(inner, fastRetry(), testLogger())

	err := st.View(context.Background(), func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetry_StopsOnCancel(t *testing.T) {
	inner := &flakyStore{failures: 10, err: ErrBusy}
	st := WithRetry(inner, &RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := st.Update(ctx, func(Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestWithBreaker_OpensOnStoreFaults(t *testing.T) {
	inner := &flakyStore{failures: 100, err: fmt.Errorf("%w: disk gone", ErrUnavailable)}
	st := WithBreaker(inner, &BreakerConfig{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Hour}, testLogger())

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, st.View(ctx, func(Tx) error { return nil }), ErrUnavailable)
	}
	assert.Equal(t, 2, inner.calls)

	// Open: fails fast without touching the inner store.
	err := st.View(ctx, func(Tx) error { return nil })
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls)
}

func TestWithBreaker_IgnoresCallerErrors(t *testing.T) {
	caller := errors.New("caller error")
	inner := &flakyStore{failures: 100, err: caller}
	st := WithBreaker(inner, &BreakerConfig{Name: "test", ConsecutiveFailures: 1, OpenTimeout: time.Hour}, testLogger())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, st.Update(ctx, func(Tx) error { return nil }), caller)
	}
	assert.Equal(t, 5, inner.calls)
}
