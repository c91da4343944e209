package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/models"
)

func (a *api) createSet(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createSetRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	id, err := a.eng.Sets.CreateSet(r.Context(), req.Title, req.Description, user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// listSets returns the caller's sets, or all public sets with ?public=true.
func (a *api) listSets(w http.ResponseWriter, r *http.Request) {
	var (
		sets []*models.TermSet
		err  error
	)
	if r.URL.Query().Get("public") == "true" {
		sets, err = a.eng.Sets.ListPublic(r.Context())
	} else {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		sets, err = a.eng.Sets.ListSets(r.Context(), user)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sets": sets})
}

func (a *api) getSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	full, err := a.eng.Sets.GetWithFragments(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if full == nil {
		writeNotFound(w, "term set", id)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

func (a *api) updateSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.requireOwner(w, r, id) {
		return
	}
	var req updateSetRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	refs := make([]core.RefInput, 0, len(req.Fragments))
	for _, f := range req.Fragments {
		refs = append(refs, core.RefInput{
			FragmentID:      f.FragmentID,
			Order:           f.Order,
			ParameterValues: f.ParameterValues,
		})
	}
	if err := a.eng.Sets.UpdateSet(r.Context(), id, refs); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.metrics.SetVersions.Inc()

	full, err := a.eng.Sets.GetWithFragments(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if full == nil {
		writeNotFound(w, "term set", id)
		return
	}
	a.hooks.NotifySetUpdated(id, full.Set.CurrentVersion)
	writeJSON(w, http.StatusOK, full)
}

func (a *api) deleteSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.requireOwner(w, r, id) {
		return
	}
	if err := a.eng.Sets.DeleteSet(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) addFragmentRef(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.requireOwner(w, r, id) {
		return
	}
	var req refRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	refID, err := a.eng.Sets.AddFragmentRef(r.Context(), id, req.FragmentID, req.ParameterValues, req.Order)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: refID})
}

func (a *api) reorderRefs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.requireOwner(w, r, id) {
		return
	}
	var req reorderRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	orders := make([]core.RefOrder, 0, len(req.Orders))
	for _, o := range req.Orders {
		orders = append(orders, core.RefOrder{RefID: o.RefID, Order: o.Order})
	}
	if err := a.eng.Sets.ReorderRefs(r.Context(), id, orders); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) setVisibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.requireOwner(w, r, id) {
		return
	}
	var req visibilityRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	if err := a.eng.Sets.SetVisibility(r.Context(), id, *req.Public); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) renderSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rendered, err := a.eng.Sets.RenderSet(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if rendered == nil {
		writeNotFound(w, "term set", id)
		return
	}
	a.metrics.Renders.Inc()
	writeJSON(w, http.StatusOK, rendered)
}

func (a *api) commonParameters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	full, err := a.eng.Sets.GetWithFragments(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if full == nil {
		writeNotFound(w, "term set", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"parameters": core.CommonParameters(full.Fragments)})
}

func (a *api) listSetVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.eng.Sets.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (a *api) getSetVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	v, err := a.eng.Sets.Version(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *api) setStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	status, err := a.eng.Ledger.StatusForSet(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fragments": status})
}

func (a *api) staleFragments(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	stale, err := a.eng.Ledger.StaleForSet(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fragments": stale})
}

// requireOwner lets only the creator of a set edit it. Sets without a
// recorded creator are editable by anyone.
func (a *api) requireOwner(w http.ResponseWriter, r *http.Request, setID string) bool {
	user, ok := requireUser(w, r)
	if !ok {
		return false
	}
	set, err := a.eng.Sets.GetSet(r.Context(), setID)
	if err != nil {
		a.writeError(w, r, err)
		return false
	}
	if set == nil {
		writeNotFound(w, "term set", setID)
		return false
	}
	if set.CreatedBy != "" && set.CreatedBy != user {
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:   "forbidden",
			Message: "only the owner of term set '" + setID + "' may edit it",
		})
		return false
	}
	return true
}
