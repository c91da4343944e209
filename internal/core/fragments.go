package core

import (
	"context"
	"sort"

	"github.com/douit-app/douit/internal/docstore"
	"github.com/douit-app/douit/internal/models"
)

// FragmentInput carries the editable fields of a fragment.
type FragmentInput struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Parameters []string `json:"parameters"`
	Tags       []string `json:"tags"`
}

// Fragments is the fragment store: live fragments plus their append-only
// version history.
type Fragments struct {
	store docstore.Store
	guard *Guard
	opts  options
}

// NewFragments creates a fragment store over st.
func NewFragments(st docstore.Store, opts ...Option) *Fragments {
	return &Fragments{
		store: st,
		guard: NewGuard(st, opts...),
		opts:  buildOptions(opts),
	}
}

// Create stores a new fragment at version 1 and returns its id.
func (f *Fragments) Create(ctx context.Context, in FragmentInput) (string, error) {
	now := f.opts.now()
	frag := &models.Fragment{
		ID:             f.opts.newID(),
		Title:          in.Title,
		Content:        in.Content,
		Parameters:     uniqueStrings(in.Parameters),
		Tags:           uniqueStrings(in.Tags),
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := f.store.Update(ctx, func(tx docstore.Tx) error {
		return docstore.PutJSON(tx, fragmentsColl, frag.ID, frag)
	})
	if err != nil {
		return "", storeErr("create fragment", err)
	}

	f.opts.logger.Debug("fragment created", "fragment_id", frag.ID)
	return frag.ID, nil
}

// Update snapshots the current state of the fragment into its history and
// then overwrites it, incrementing the version. Both writes commit together.
// Every call produces a new version, even when nothing changed.
func (f *Fragments) Update(ctx context.Context, id string, in FragmentInput) error {
	var version int
	err := f.store.Update(ctx, func(tx docstore.Tx) error {
		var frag models.Fragment
		if err := docstore.GetJSON(tx, fragmentsColl, id, &frag); err != nil {
			if isMissing(err) {
				return notFound("fragment", id)
			}
			return err
		}

		now := f.opts.now()
		snap := frag.Snapshot(now)
		if err := docstore.PutJSON(tx, fragmentVersionsColl(id), versionKey(snap.Version), snap); err != nil {
			return err
		}

		frag.Title = in.Title
		frag.Content = in.Content
		frag.Parameters = uniqueStrings(in.Parameters)
		frag.Tags = uniqueStrings(in.Tags)
		frag.CurrentVersion++
		frag.UpdatedAt = now
		version = frag.CurrentVersion
		return docstore.PutJSON(tx, fragmentsColl, id, &frag)
	})
	if err != nil {
		return storeErr("update fragment", err)
	}

	f.opts.logger.Debug("fragment updated", "fragment_id", id, "version", version)
	return nil
}

// Get returns the fragment, or nil if it does not exist.
func (f *Fragments) Get(ctx context.Context, id string) (*models.Fragment, error) {
	var frag *models.Fragment
	err := f.store.View(ctx, func(tx docstore.Tx) error {
		var v models.Fragment
		if err := docstore.GetJSON(tx, fragmentsColl, id, &v); err != nil {
			if isMissing(err) {
				return nil
			}
			return err
		}
		frag = &v
		return nil
	})
	if err != nil {
		return nil, storeErr("get fragment", err)
	}
	return frag, nil
}

// Delete removes the fragment unless term sets still reference it and force
// is false. See Guard.SafeDelete.
func (f *Fragments) Delete(ctx context.Context, id string, force bool) (*DeleteResult, error) {
	return f.guard.SafeDelete(ctx, id, force)
}

// List returns all fragments, most recently updated first.
func (f *Fragments) List(ctx context.Context) ([]*models.Fragment, error) {
	var frags []*models.Fragment
	err := f.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		frags, err = docstore.ListJSON[models.Fragment](tx, fragmentsColl)
		return err
	})
	if err != nil {
		return nil, storeErr("list fragments", err)
	}

	sort.SliceStable(frags, func(i, j int) bool {
		if !frags[i].UpdatedAt.Equal(frags[j].UpdatedAt) {
			return frags[i].UpdatedAt.After(frags[j].UpdatedAt)
		}
		return frags[i].ID > frags[j].ID
	})
	return frags, nil
}

// ListByTag returns the fragments carrying tag, most recently updated first.
func (f *Fragments) ListByTag(ctx context.Context, tag string) ([]*models.Fragment, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Fragment, 0, len(all))
	for _, frag := range all {
		if frag.HasTag(tag) {
			out = append(out, frag)
		}
	}
	return out, nil
}

// Versions returns the archived versions of a fragment in ascending order.
// History outlives the fragment, so a deleted fragment still has versions.
func (f *Fragments) Versions(ctx context.Context, id string) ([]*models.FragmentVersion, error) {
	var versions []*models.FragmentVersion
	err := f.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		versions, err = docstore.ListJSON[models.FragmentVersion](tx, fragmentVersionsColl(id))
		return err
	})
	if err != nil {
		return nil, storeErr("list fragment versions", err)
	}
	return versions, nil
}

// Version returns one archived version of a fragment.
func (f *Fragments) Version(ctx context.Context, id string, version int) (*models.FragmentVersion, error) {
	var v models.FragmentVersion
	err := f.store.View(ctx, func(tx docstore.Tx) error {
		err := docstore.GetJSON(tx, fragmentVersionsColl(id), versionKey(version), &v)
		if isMissing(err) {
			return notFound("fragment version", versionKey(version))
		}
		return err
	})
	if err != nil {
		return nil, storeErr("get fragment version", err)
	}
	return &v, nil
}

// uniqueStrings drops duplicates and keeps first-seen order. The result is
// never nil.
func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
