package core

import (
	"context"
	"fmt"

	"github.com/douit-app/douit/internal/docstore"
	"github.com/douit-app/douit/internal/models"
)

// SetRef identifies a term set that references a fragment.
type SetRef struct {
	SetID string `json:"setId"`
}

// DeleteResult is the outcome of a guarded fragment delete.
type DeleteResult struct {
	Success         bool     `json:"success"`
	ReferencingSets []SetRef `json:"referencingSets,omitempty"`
	Message         string   `json:"message"`
}

// Guard protects fragments that are still referenced by term sets. It reads
// the fragment usage index maintained by TermSets.
type Guard struct {
	store docstore.Store
	opts  options
}

// NewGuard creates a reference integrity guard over st.
func NewGuard(st docstore.Store, opts ...Option) *Guard {
	return &Guard{store: st, opts: buildOptions(opts)}
}

// FindReferencingSets returns every term set holding at least one reference
// to fragmentID, ordered by set id.
func (g *Guard) FindReferencingSets(ctx context.Context, fragmentID string) ([]SetRef, error) {
	var usage []*models.FragmentUsage
	err := g.store.View(ctx, func(tx docstore.Tx) error {
		var err error
		usage, err = docstore.ListJSON[models.FragmentUsage](tx, usageColl(fragmentID))
		return err
	})
	if err != nil {
		return nil, storeErr("find referencing sets", err)
	}

	refs := make([]SetRef, 0, len(usage))
	for _, u := range usage {
		refs = append(refs, SetRef{SetID: u.SetID})
	}
	return refs, nil
}

// SafeDelete deletes a fragment when no term set references it, or when force
// is set. Referencing sets keep their references, which then no longer
// resolve. The version history of the fragment is retained.
//
// The reference check and the delete run in separate transactions: a
// reference added in between is not seen.
func (g *Guard) SafeDelete(ctx context.Context, fragmentID string, force bool) (*DeleteResult, error) {
	err := g.store.View(ctx, func(tx docstore.Tx) error {
		_, err := tx.Get(fragmentsColl, fragmentID)
		if isMissing(err) {
			return notFound("fragment", fragmentID)
		}
		return err
	})
	if err != nil {
		return nil, storeErr("delete fragment", err)
	}

	refs, err := g.FindReferencingSets(ctx, fragmentID)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 && !force {
		return &DeleteResult{
			Success:         false,
			ReferencingSets: refs,
			Message:         fmt.Sprintf("%d sets reference this fragment", len(refs)),
		}, nil
	}

	err = g.store.Update(ctx, func(tx docstore.Tx) error {
		return tx.Delete(fragmentsColl, fragmentID)
	})
	if err != nil {
		return nil, storeErr("delete fragment", err)
	}

	g.opts.logger.Debug("fragment deleted", "fragment_id", fragmentID, "forced", force, "dangling_sets", len(refs))
	return &DeleteResult{Success: true, Message: "deleted"}, nil
}
