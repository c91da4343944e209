package core

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type options struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a core component.
type Option func(*options)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces the entity id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

// WithLogger sets the component logger. A nil logger means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{
		now:   func() time.Time { return time.Now().UTC() },
		newID: newUUID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// newUUID returns a time-ordered id, so listing by id follows insertion order.
func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}
