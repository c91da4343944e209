// Package docstore provides the document storage abstraction used by the
// content engine: named collections of JSON documents, addressed by
// slash-separated paths, read and written inside transactions.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt is returned when a stored document does not match the schema
	// of the type it is decoded into.
	ErrCorrupt = errors.New("corrupt document")
	// ErrBusy marks transient contention (locked database, lock timeout).
	ErrBusy = errors.New("store busy")
	// ErrUnavailable marks failures of the store itself rather than of the
	// caller's transaction function.
	ErrUnavailable = errors.New("store unavailable")
)

// Document is a raw stored document.
type Document struct {
	ID   string
	Data []byte
}

// Tx is a view of the store inside a single transaction. Byte slices returned
// by a Tx are owned by the caller.
type Tx interface {
	// Get returns the document or ErrNotFound.
	Get(collection, id string) ([]byte, error)
	// Put creates or replaces a document.
	Put(collection, id string, data []byte) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(collection, id string) error
	// List returns every document of a collection ordered by id.
	List(collection string) ([]Document, error)
}

// Store is a transactional document store. fn runs inside the transaction;
// returning an error from fn rolls the transaction back.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Path joins collection path segments: Path("termSets", id, "fragments").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}
