package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/douit-app/douit/internal/docstore"
)

func TestFragments_CreateAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		id, err := eng.Fragments.Create(ctx, FragmentInput{
			Title:      "Liability",
			Content:    "[PROVIDER] is not liable.",
			Parameters: []string{"PROVIDER", "PROVIDER"},
			Tags:       []string{"legal", "legal", "core"},
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		frag, err := eng.Fragments.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, frag)
		assert.Equal(t, "Liability", frag.Title)
		assert.Equal(t, 1, frag.CurrentVersion)
		assert.Equal(t, []string{"PROVIDER"}, frag.Parameters)
		assert.Equal(t, []string{"legal", "core"}, frag.Tags)
		assert.True(t, frag.CreatedAt.Equal(frag.UpdatedAt))
	})
}

func TestFragments_GetMissingReturnsNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)

		frag, err := eng.Fragments.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, frag)
	})
}

func TestFragments_UpdateSnapshotsEveryEdit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		id, err := eng.Fragments.Create(ctx, FragmentInput{Title: "v1", Content: "c1", Tags: []string{"t1"}})
		require.NoError(t, err)

		const edits = 4
		var before []FragmentInput
		var beforeUpdated []time.Time
		for i := 0; i < edits; i++ {
			cur, err := eng.Fragments.Get(ctx, id)
			require.NoError(t, err)
			before = append(before, FragmentInput{Title: cur.Title, Content: cur.Content, Tags: cur.Tags, Parameters: cur.Parameters})
			beforeUpdated = append(beforeUpdated, cur.UpdatedAt)

			require.NoError(t, eng.Fragments.Update(ctx, id, FragmentInput{
				Title:   fmt.Sprintf("v%d", i+2),
				Content: fmt.Sprintf("c%d", i+2),
				Tags:    []string{fmt.Sprintf("t%d", i+2)},
			}))
		}

		frag, err := eng.Fragments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1+edits, frag.CurrentVersion)
		assert.Equal(t, "v5", frag.Title)
		assert.True(t, frag.UpdatedAt.After(frag.CreatedAt))

		versions, err := eng.Fragments.Versions(ctx, id)
		require.NoError(t, err)
		require.Len(t, versions, edits)
		for i, v := range versions {
			assert.Equal(t, i+1, v.Version)
			assert.Equal(t, id, v.FragmentID)
			assert.Equal(t, before[i].Title, v.Title)
			assert.Equal(t, before[i].Content, v.Content)
			assert.Equal(t, before[i].Tags, v.Tags)
			assert.Equal(t, before[i].Parameters, v.Parameters)
			assert.True(t, v.CreatedAt.Equal(frag.CreatedAt))
			assert.True(t, beforeUpdated[i].Equal(v.UpdatedAt))
		}
	})
}

func TestFragments_UpdateIsNotIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		in := FragmentInput{Title: "same", Content: "same"}
		id, err := eng.Fragments.Create(ctx, in)
		require.NoError(t, err)
		require.NoError(t, eng.Fragments.Update(ctx, id, in))
		require.NoError(t, eng.Fragments.Update(ctx, id, in))

		frag, err := eng.Fragments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, frag.CurrentVersion)
	})
}

func TestFragments_UpdateMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)

		err := eng.Fragments.Update(context.Background(), "nope", FragmentInput{Title: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, KindNotFound, KindOf(err))
	})
}

func TestFragments_UpdateCancelledLeavesNoSnapshot(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		id, err := eng.Fragments.Create(ctx, FragmentInput{Title: "a"})
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err = eng.Fragments.Update(cancelled, id, FragmentInput{Title: "b"})
		require.ErrorIs(t, err, context.Canceled)

		versions, err := eng.Fragments.Versions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, versions)
		frag, err := eng.Fragments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, frag.CurrentVersion)
	})
}

func TestFragments_Version(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		id, err := eng.Fragments.Create(ctx, FragmentInput{Title: "first"})
		require.NoError(t, err)
		require.NoError(t, eng.Fragments.Update(ctx, id, FragmentInput{Title: "second"}))

		v, err := eng.Fragments.Version(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, "first", v.Title)

		_, err = eng.Fragments.Version(ctx, id, 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFragments_ListAndListByTag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, _ := newTestEngine(t, backend)
		ctx := context.Background()

		a, err := eng.Fragments.Create(ctx, FragmentInput{Title: "a", Tags: []string{"privacy"}})
		require.NoError(t, err)
		b, err := eng.Fragments.Create(ctx, FragmentInput{Title: "b", Tags: []string{"payment"}})
		require.NoError(t, err)
		c, err := eng.Fragments.Create(ctx, FragmentInput{Title: "c", Tags: []string{"privacy", "payment"}})
		require.NoError(t, err)
		require.NoError(t, eng.Fragments.Update(ctx, a, FragmentInput{Title: "a2", Tags: []string{"privacy"}}))

		all, err := eng.Fragments.List(ctx)
		require.NoError(t, err)
		var ids []string
		for _, f := range all {
			ids = append(ids, f.ID)
		}
		assert.Equal(t, []string{a, c, b}, ids)

		privacy, err := eng.Fragments.ListByTag(ctx, "privacy")
		require.NoError(t, err)
		require.Len(t, privacy, 2)
		assert.Equal(t, a, privacy[0].ID)
		assert.Equal(t, c, privacy[1].ID)

		none, err := eng.Fragments.ListByTag(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestFragments_CorruptDocumentIsStoreFailure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, backend string) {
		eng, st := newTestEngine(t, backend)
		ctx := context.Background()

		require.NoError(t, st.Update(ctx, func(tx docstore.Tx) error {
			return tx.Put(fragmentsColl, "bad", []byte(`{"id":"bad","currentVersion":0,"unexpected":true}`))
		}))

		_, err := eng.Fragments.Get(ctx, "bad")
		require.Error(t, err)
		assert.ErrorIs(t, err, docstore.ErrCorrupt)
		assert.Equal(t, KindStoreFailure, KindOf(err))
	})
}
