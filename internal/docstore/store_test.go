package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID    string `json:"id" validate:"required"`
	Count int    `json:"count" validate:"min=0"`
}

// backends returns one fresh store per backend, each in its own temp dir.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := make(map[string]Store)
	for _, name := range []string{BackendBolt, BackendSQLite} {
		st, err := Open(name, t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		out[name] = st
	}
	return out
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := st.View(ctx, func(tx Tx) error {
				_, err := tx.Get("things", "a")
				return err
			})
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				return PutJSON(tx, "things", "a", &testDoc{ID: "a", Count: 1})
			}))

			var got testDoc
			require.NoError(t, st.View(ctx, func(tx Tx) error {
				return GetJSON(tx, "things", "a", &got)
			}))
			assert.Equal(t, testDoc{ID: "a", Count: 1}, got)

			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				return tx.Delete("things", "a")
			}))
			// Deleting again is a no-op.
			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				return tx.Delete("things", "a")
			}))

			err = st.View(ctx, func(tx Tx) error {
				_, err := tx.Get("things", "a")
				return err
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ListOrderedByID(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(tx Tx) error {
				for _, id := range []string{"00000003", "00000001", "00000002"} {
					if err := PutJSON(tx, Path("sets", "s1", "versions"), id, &testDoc{ID: id}); err != nil {
						return err
					}
				}
				// Same name under a different parent must stay separate.
				return PutJSON(tx, Path("sets", "s2", "versions"), "00000009", &testDoc{ID: "00000009"})
			}))

			var docs []*testDoc
			require.NoError(t, st.View(ctx, func(tx Tx) error {
				var err error
				docs, err = ListJSON[testDoc](tx, Path("sets", "s1", "versions"))
				return err
			}))
			require.Len(t, docs, 3)
			assert.Equal(t, "00000001", docs[0].ID)
			assert.Equal(t, "00000002", docs[1].ID)
			assert.Equal(t, "00000003", docs[2].ID)

			var empty []*testDoc
			require.NoError(t, st.View(ctx, func(tx Tx) error {
				var err error
				empty, err = ListJSON[testDoc](tx, "missing")
				return err
			}))
			assert.Empty(t, empty)
		})
	}
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Update(ctx, func(tx Tx) error {
				if err := PutJSON(tx, "things", "a", &testDoc{ID: "a"}); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			err = st.View(ctx, func(tx Tx) error {
				_, err := tx.Get("things", "a")
				return err
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_CancelledContextRollsBack(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			err := st.Update(ctx, func(tx Tx) error {
				if err := PutJSON(tx, "things", "a", &testDoc{ID: "a"}); err != nil {
					return err
				}
				cancel()
				return nil
			})
			assert.ErrorIs(t, err, context.Canceled)

			err = st.View(context.Background(), func(tx Tx) error {
				_, err := tx.Get("things", "a")
				return err
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, st.Ping(context.Background()))
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("mongo", t.TempDir())
	assert.Error(t, err)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	st, err := NewBoltStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Update(ctx, func(tx Tx) error {
		return PutJSON(tx, "things", "a", &testDoc{ID: "a", Count: 7})
	}))
	require.NoError(t, st.Close())

	st, err = NewBoltStore(dbPath)
	require.NoError(t, err)
	defer st.Close()

	var got testDoc
	require.NoError(t, st.View(ctx, func(tx Tx) error {
		return GetJSON(tx, "things", "a", &got)
	}))
	assert.Equal(t, 7, got.Count)
}

func TestDecode_FailsClosed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"unknown fields are rejected", `{"id":"a","count":1,"extra":true}`},
		{"required fields are enforced", `{"count":1}`},
		{"value rules are enforced", `{"id":"a","count":-1}`},
		{"type mismatches are rejected", `{"id":"a","count":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d testDoc
			assert.ErrorIs(t, Decode([]byte(tc.data), &d), ErrCorrupt)
		})
	}

	var d testDoc
	require.NoError(t, Decode([]byte(`{"id":"a","count":2}`), &d))
	assert.Equal(t, 2, d.Count)
}

func TestDecode_IgnoresPriorTargetState(t *testing.T) {
	d := testDoc{ID: "stale", Count: 3}

	err := Decode([]byte(`{"count":1}`), &d)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, testDoc{ID: "stale", Count: 3}, d, "target is untouched on failure")

	require.NoError(t, Decode([]byte(`{"id":"b","count":1}`), &d))
	assert.Equal(t, "b", d.ID)
	assert.Equal(t, 1, d.Count)
}

func TestDecode_RejectsNonPointer(t *testing.T) {
	err := Decode([]byte(`{"id":"a","count":1}`), testDoc{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
}
