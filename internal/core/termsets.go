package core

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/douit-app/douit/internal/docstore"
	"github.com/douit-app/douit/internal/models"
	"github.com/douit-app/douit/internal/render"
)

// fragmentLoadLimit bounds concurrent fragment reads when resolving a set.
const fragmentLoadLimit = 8

// RefInput describes one reference of a replacement reference list. A nil
// Order places the reference at its 1-based position in the list.
type RefInput struct {
	FragmentID      string            `json:"fragmentId"`
	Order           *int              `json:"order,omitempty"`
	ParameterValues map[string]string `json:"parameterValues,omitempty"`
}

// RefOrder assigns a new order to an existing reference.
type RefOrder struct {
	RefID string `json:"refId"`
	Order int    `json:"order"`
}

// SetEntry is a reference paired with the fragment it resolves to. Fragment
// is nil when the referenced fragment no longer exists.
type SetEntry struct {
	Ref      *models.FragmentRef `json:"ref"`
	Fragment *models.Fragment    `json:"fragment,omitempty"`
}

// SetWithFragments is a term set with its references resolved, in order.
type SetWithFragments struct {
	Set       *models.TermSet `json:"set"`
	Fragments []SetEntry      `json:"fragments"`
}

// RenderedFragment is one fragment of a rendered set.
type RenderedFragment struct {
	Title           string `json:"title"`
	RenderedContent string `json:"renderedContent"`
	Order           int    `json:"order"`
}

// RenderedSet is the rendering contract consumed by document viewers.
type RenderedSet struct {
	Fragments []RenderedFragment `json:"fragments"`
}

// SetVersion is an archived term set version with the references it had.
type SetVersion struct {
	Version *models.TermSetVersion `json:"version"`
	Refs    []*models.FragmentRef  `json:"refs"`
}

// TermSets composes fragments into ordered term sets and keeps set history.
// Every reference mutation also maintains the fragment usage index read by
// Guard.
type TermSets struct {
	store docstore.Store
	opts  options
}

// NewTermSets creates a term set composer over st.
func NewTermSets(st docstore.Store, opts ...Option) *TermSets {
	return &TermSets{store: st, opts: buildOptions(opts)}
}

// CreateSet stores a new private term set at version 1 and returns its id.
func (s *TermSets) CreateSet(ctx context.Context, title, description, ownerID string) (string, error) {
	now := s.opts.now()
	set := &models.TermSet{
		ID:             s.opts.newID(),
		Title:          title,
		Description:    description,
		CreatedBy:      ownerID,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		return docstore.PutJSON(tx, termSetsColl, set.ID, set)
	})
	if err != nil {
		return "", storeErr("create term set", err)
	}

	s.opts.logger.Debug("term set created", "set_id", set.ID, "owner", ownerID)
	return set.ID, nil
}

// AddFragmentRef appends a reference to fragmentID and returns the reference
// id. With a nil order the reference goes after the highest existing order.
// The fragment id is not checked for existence.
//
// The highest order is read in its own transaction before the insert, so two
// concurrent appends may receive the same order.
func (s *TermSets) AddFragmentRef(ctx context.Context, setID, fragmentID string, values map[string]string, order *int) (string, error) {
	if fragmentID == "" {
		return "", fmt.Errorf("add fragment ref: fragment id is required: %w", ErrValidation)
	}

	pos := 0
	if order != nil {
		pos = *order
	} else {
		err := s.store.View(ctx, func(tx docstore.Tx) error {
			if _, err := getSet(tx, setID); err != nil {
				return err
			}
			refs, err := docstore.ListJSON[models.FragmentRef](tx, refsColl(setID))
			if err != nil {
				return err
			}
			pos = nextOrder(refs)
			return nil
		})
		if err != nil {
			return "", storeErr("add fragment ref", err)
		}
	}

	now := s.opts.now()
	ref := &models.FragmentRef{
		ID:              s.opts.newID(),
		FragmentID:      fragmentID,
		Order:           pos,
		ParameterValues: copyValues(values),
		CreatedAt:       now,
	}

	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		set, err := getSet(tx, setID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(fragmentsColl, fragmentID); isMissing(err) {
			s.opts.logger.Debug("reference to unknown fragment", "set_id", setID, "fragment_id", fragmentID)
		} else if err != nil {
			return err
		}

		if err := docstore.PutJSON(tx, refsColl(setID), ref.ID, ref); err != nil {
			return err
		}
		if err := adjustUsage(tx, fragmentID, setID, 1); err != nil {
			return err
		}
		set.UpdatedAt = now
		return docstore.PutJSON(tx, termSetsColl, setID, set)
	})
	if err != nil {
		return "", storeErr("add fragment ref", err)
	}

	s.opts.logger.Debug("fragment ref added", "set_id", setID, "ref_id", ref.ID, "order", pos)
	return ref.ID, nil
}

// ReorderRefs applies all order changes or none of them.
func (s *TermSets) ReorderRefs(ctx context.Context, setID string, orders []RefOrder) error {
	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		set, err := getSet(tx, setID)
		if err != nil {
			return err
		}
		for _, o := range orders {
			var ref models.FragmentRef
			if err := docstore.GetJSON(tx, refsColl(setID), o.RefID, &ref); err != nil {
				if isMissing(err) {
					return notFound("fragment ref", o.RefID)
				}
				return err
			}
			ref.Order = o.Order
			if err := docstore.PutJSON(tx, refsColl(setID), ref.ID, &ref); err != nil {
				return err
			}
		}
		set.UpdatedAt = s.opts.now()
		return docstore.PutJSON(tx, termSetsColl, setID, set)
	})
	if err != nil {
		return storeErr("reorder refs", err)
	}
	return nil
}

// UpdateSet replaces the reference list of a set. The current version and
// all current references are archived first, then every reference is deleted
// and the new list inserted fresh. The whole replacement is one transaction;
// if the set has been deleted by the time it runs, UpdateSet fails with
// ErrConflict.
func (s *TermSets) UpdateSet(ctx context.Context, setID string, refs []RefInput) error {
	for i, in := range refs {
		if in.FragmentID == "" {
			return fmt.Errorf("update term set: ref %d: fragment id is required: %w", i, ErrValidation)
		}
	}

	var version int
	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		set, err := getSet(tx, setID)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return fmt.Errorf("term set %q no longer exists: %w", setID, ErrConflict)
			}
			return err
		}

		now := s.opts.now()
		old, err := docstore.ListJSON[models.FragmentRef](tx, refsColl(setID))
		if err != nil {
			return err
		}

		snap := &models.TermSetVersion{
			SetID:      setID,
			Version:    set.CurrentVersion,
			UpdatedAt:  set.UpdatedAt,
			ArchivedAt: now,
			RefCount:   len(old),
		}
		if err := docstore.PutJSON(tx, setVersionsColl(setID), versionKey(snap.Version), snap); err != nil {
			return err
		}
		archive := archivedRefsColl(setID, snap.Version)
		for _, ref := range old {
			if err := docstore.PutJSON(tx, archive, ref.ID, ref); err != nil {
				return err
			}
			if err := tx.Delete(refsColl(setID), ref.ID); err != nil {
				return err
			}
			if err := adjustUsage(tx, ref.FragmentID, setID, -1); err != nil {
				return err
			}
		}

		for i, in := range refs {
			order := i + 1
			if in.Order != nil {
				order = *in.Order
			}
			ref := &models.FragmentRef{
				ID:              s.opts.newID(),
				FragmentID:      in.FragmentID,
				Order:           order,
				ParameterValues: copyValues(in.ParameterValues),
				CreatedAt:       now,
			}
			if err := docstore.PutJSON(tx, refsColl(setID), ref.ID, ref); err != nil {
				return err
			}
			if err := adjustUsage(tx, in.FragmentID, setID, 1); err != nil {
				return err
			}
		}

		set.CurrentVersion++
		set.UpdatedAt = now
		version = set.CurrentVersion
		return docstore.PutJSON(tx, termSetsColl, setID, set)
	})
	if err != nil {
		return storeErr("update term set", err)
	}

	s.opts.logger.Debug("term set updated", "set_id", setID, "version", version, "refs", len(refs))
	return nil
}

// GetSet returns the term set, or nil if it does not exist.
func (s *TermSets) GetSet(ctx context.Context, setID string) (*models.TermSet, error) {
	var set *models.TermSet
	err := s.store.View(ctx, func(tx docstore.Tx) error {
		v, err := getSet(tx, setID)
		if KindOf(err) == KindNotFound {
			return nil
		}
		set = v
		return err
	})
	if err != nil {
		return nil, storeErr("get term set", err)
	}
	return set, nil
}

// Refs returns the current references of a set in display order.
func (s *TermSets) Refs(ctx context.Context, setID string) ([]*models.FragmentRef, error) {
	var refs []*models.FragmentRef
	err := s.store.View(ctx, func(tx docstore.Tx) error {
		if _, err := getSet(tx, setID); err != nil {
			return err
		}
		var err error
		refs, err = docstore.ListJSON[models.FragmentRef](tx, refsColl(setID))
		return err
	})
	if err != nil {
		return nil, storeErr("list fragment refs", err)
	}
	sortRefs(refs)
	return refs, nil
}

// GetWithFragments returns the set with each reference resolved to its
// fragment, ascending by order, or nil if the set does not exist.
func (s *TermSets) GetWithFragments(ctx context.Context, setID string) (*SetWithFragments, error) {
	set, err := s.GetSet(ctx, setID)
	if err != nil || set == nil {
		return nil, err
	}
	refs, err := s.Refs(ctx, setID)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]SetEntry, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fragmentLoadLimit)
	for i, ref := range refs {
		i, ref := i, ref
		entries[i].Ref = ref
		g.Go(func() error {
			return s.store.View(gctx, func(tx docstore.Tx) error {
				var frag models.Fragment
				err := docstore.GetJSON(tx, fragmentsColl, ref.FragmentID, &frag)
				if isMissing(err) {
					return nil
				}
				if err != nil {
					return err
				}
				entries[i].Fragment = &frag
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeErr("load set fragments", err)
	}

	return &SetWithFragments{Set: set, Fragments: entries}, nil
}

// RenderSet renders every resolvable fragment of the set with the parameter
// values of its reference. References to missing fragments are skipped.
// Returns nil if the set does not exist.
func (s *TermSets) RenderSet(ctx context.Context, setID string) (*RenderedSet, error) {
	full, err := s.GetWithFragments(ctx, setID)
	if err != nil || full == nil {
		return nil, err
	}

	out := &RenderedSet{Fragments: make([]RenderedFragment, 0, len(full.Fragments))}
	for _, e := range full.Fragments {
		if e.Fragment == nil {
			s.opts.logger.Debug("skipping unresolved fragment", "set_id", setID, "fragment_id", e.Ref.FragmentID)
			continue
		}
		out.Fragments = append(out.Fragments, RenderedFragment{
			Title:           e.Fragment.Title,
			RenderedContent: render.Render(e.Fragment.Content, e.Ref.ParameterValues),
			Order:           e.Ref.Order,
		})
	}
	return out, nil
}

// DeleteSet removes the set and its references. Set history is retained.
func (s *TermSets) DeleteSet(ctx context.Context, setID string) error {
	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		if _, err := getSet(tx, setID); err != nil {
			return err
		}
		refs, err := docstore.ListJSON[models.FragmentRef](tx, refsColl(setID))
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := tx.Delete(refsColl(setID), ref.ID); err != nil {
				return err
			}
			if err := adjustUsage(tx, ref.FragmentID, setID, -1); err != nil {
				return err
			}
		}
		return tx.Delete(termSetsColl, setID)
	})
	if err != nil {
		return storeErr("delete term set", err)
	}

	s.opts.logger.Debug("term set deleted", "set_id", setID)
	return nil
}

// ListSets returns the sets created by ownerID, most recently updated first.
func (s *TermSets) ListSets(ctx context.Context, ownerID string) ([]*models.TermSet, error) {
	return s.listWhere(ctx, func(set *models.TermSet) bool { return set.CreatedBy == ownerID })
}

// ListPublic returns the public sets, most recently updated first.
func (s *TermSets) ListPublic(ctx context.Context) ([]*models.TermSet, error) {
	return s.listWhere(ctx, func(set *models.TermSet) bool { return set.IsPublic })
}

func (s *TermSets) listWhere(ctx context.Context, keep func(*models.TermSet) bool) ([]*models.TermSet, error) {
	var all []*models.TermSet
	err := s.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		all, err = docstore.ListJSON[models.TermSet](tx, termSetsColl)
		return err
	})
	if err != nil {
		return nil, storeErr("list term sets", err)
	}

	out := make([]*models.TermSet, 0, len(all))
	for _, set := range all {
		if keep(set) {
			out = append(out, set)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// SetVisibility publishes or unpublishes a set.
func (s *TermSets) SetVisibility(ctx context.Context, setID string, public bool) error {
	err := s.store.Update(ctx, func(tx docstore.Tx) error {
		set, err := getSet(tx, setID)
		if err != nil {
			return err
		}
		set.IsPublic = public
		set.UpdatedAt = s.opts.now()
		return docstore.PutJSON(tx, termSetsColl, setID, set)
	})
	if err != nil {
		return storeErr("set visibility", err)
	}
	return nil
}

// Versions returns the archived versions of a set in ascending order.
func (s *TermSets) Versions(ctx context.Context, setID string) ([]*models.TermSetVersion, error) {
	var versions []*models.TermSetVersion
	err := s.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		versions, err = docstore.ListJSON[models.TermSetVersion](tx, setVersionsColl(setID))
		return err
	})
	if err != nil {
		return nil, storeErr("list term set versions", err)
	}
	return versions, nil
}

// Version returns one archived set version with its references.
func (s *TermSets) Version(ctx context.Context, setID string, version int) (*SetVersion, error) {
	out := &SetVersion{}
	err := s.store.View(ctx, func(tx docstore.Tx) error {
		var v models.TermSetVersion
		if err := docstore.GetJSON(tx, setVersionsColl(setID), versionKey(version), &v); err != nil {
			if isMissing(err) {
				return notFound("term set version", versionKey(version))
			}
			return err
		}
		refs, err := docstore.ListJSON[models.FragmentRef](tx, archivedRefsColl(setID, version))
		if err != nil {
			return err
		}
		sortRefs(refs)
		out.Version = &v
		out.Refs = refs
		return nil
	})
	if err != nil {
		return nil, storeErr("get term set version", err)
	}
	return out, nil
}

func getSet(tx docstore.Tx, setID string) (*models.TermSet, error) {
	var set models.TermSet
	if err := docstore.GetJSON(tx, termSetsColl, setID, &set); err != nil {
		if isMissing(err) {
			return nil, notFound("term set", setID)
		}
		return nil, err
	}
	return &set, nil
}

// adjustUsage moves the reference count of (fragmentID, setID) by delta,
// dropping the index entry when it reaches zero.
func adjustUsage(tx docstore.Tx, fragmentID, setID string, delta int) error {
	coll := usageColl(fragmentID)
	var u models.FragmentUsage
	err := docstore.GetJSON(tx, coll, setID, &u)
	switch {
	case isMissing(err):
		u = models.FragmentUsage{FragmentID: fragmentID, SetID: setID}
	case err != nil:
		return err
	}

	u.RefCount += delta
	if u.RefCount <= 0 {
		return tx.Delete(coll, setID)
	}
	return docstore.PutJSON(tx, coll, setID, &u)
}

func nextOrder(refs []*models.FragmentRef) int {
	if len(refs) == 0 {
		return 1
	}
	highest := refs[0].Order
	for _, r := range refs[1:] {
		if r.Order > highest {
			highest = r.Order
		}
	}
	return highest + 1
}

// sortRefs orders references by Order; equal orders keep insertion order
// because ids are time-ordered.
func sortRefs(refs []*models.FragmentRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Order != refs[j].Order {
			return refs[i].Order < refs[j].Order
		}
		return refs[i].ID < refs[j].ID
	})
}

func copyValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
