package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store on a single bbolt file. Each collection path is
// its own top-level bucket, so "fragments" and "fragments/<id>/versions"
// never collide.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a bbolt database at the given path.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("open database %s: %w", dbPath, ErrBusy)
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that a read transaction can be opened.
func (s *BoltStore) Ping(ctx context.Context) error {
	return s.View(ctx, func(Tx) error { return nil })
}

// View runs fn in a read-only transaction.
func (s *BoltStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.db.View(func(tx *bolt.Tx) error {
		fnErr = fn(&boltTx{tx: tx})
		return fnErr
	})
	return classifyBolt(err, fnErr)
}

// Update runs fn in a read-write transaction. A context cancelled before
// commit rolls the whole transaction back.
func (s *BoltStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	err := s.db.Update(func(tx *bolt.Tx) error {
		if fnErr = fn(&boltTx{tx: tx}); fnErr != nil {
			return fnErr
		}
		fnErr = ctx.Err()
		return fnErr
	})
	return classifyBolt(err, fnErr)
}

// classifyBolt separates errors raised by the caller's function from
// failures of bbolt itself (commit, closed database).
func classifyBolt(err, fnErr error) error {
	if err == nil || err == fnErr {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Get(collection, id string) ([]byte, error) {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, ErrNotFound
	}
	v := b.Get([]byte(id))
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the life of the transaction.
	return append([]byte(nil), v...), nil
}

func (t *boltTx) Put(collection, id string, data []byte) error {
	b, err := t.tx.CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", collection, err)
	}
	if err := b.Put([]byte(id), data); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *boltTx) Delete(collection, id string) error {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil
	}
	if err := b.Delete([]byte(id)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}

	// Drop emptied collections so per-parent buckets do not accumulate.
	if k, _ := b.Cursor().First(); k == nil {
		if err := t.tx.DeleteBucket([]byte(collection)); err != nil {
			return fmt.Errorf("delete bucket %s: %w", collection, err)
		}
	}
	return nil
}

func (t *boltTx) List(collection string) ([]Document, error) {
	b := t.tx.Bucket([]byte(collection))
	if b == nil {
		return nil, nil
	}
	var docs []Document
	err := b.ForEach(func(k, v []byte) error {
		docs = append(docs, Document{
			ID:   string(k),
			Data: append([]byte(nil), v...),
		})
		return nil
	})
	return docs, err
}
