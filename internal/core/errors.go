// Package core implements the content engine: fragment versioning, term set
// composition, reference integrity, the understanding ledger and parameter
// reconciliation. Components are constructed over a docstore.Store and hold no
// other state.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/douit-app/douit/internal/docstore"
)

// Sentinel errors. Every error returned by a core component matches at most
// one of them via errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrStoreFailure = errors.New("store failure")
)

// Kind is the transport-neutral classification of an error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindStoreFailure Kind = "store_failure"
	KindUnknown      Kind = "unknown"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrStoreFailure):
		return KindStoreFailure
	default:
		return KindUnknown
	}
}

// storeErr wraps an error coming out of a store transaction. Errors already
// carrying a core kind, and context cancellation, pass through unchanged.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// isMissing reports whether err is a docstore miss.
func isMissing(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
