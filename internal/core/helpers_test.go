package core

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/douit-app/douit/internal/docstore"
)

// fakeClock advances one second on every reading.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// testBackends lists the store backends every engine test runs against.
var testBackends = []string{docstore.BackendBolt, docstore.BackendSQLite}

// forEachBackend runs fn as a subtest per store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, backend string)) {
	t.Helper()
	for _, backend := range testBackends {
		t.Run(backend, func(t *testing.T) {
			fn(t, backend)
		})
	}
}

func newTestStore(t *testing.T, backend string) docstore.Store {
	t.Helper()
	st, err := docstore.Open(backend, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestEngine(t *testing.T, backend string) (*Engine, docstore.Store) {
	t.Helper()
	st := newTestStore(t, backend)
	clock := newFakeClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(st, WithClock(clock.Now), WithLogger(logger)), st
}

func intPtr(v int) *int { return &v }
