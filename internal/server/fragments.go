package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/douit-app/douit/internal/core"
	"github.com/douit-app/douit/internal/models"
	"github.com/douit-app/douit/internal/render"
)

// fragmentResponse is a fragment plus the placeholders found in its content.
type fragmentResponse struct {
	*models.Fragment
	Placeholders []string `json:"placeholders"`
}

func toFragmentInput(req *fragmentRequest) core.FragmentInput {
	return core.FragmentInput{
		Title:      req.Title,
		Content:    req.Content,
		Parameters: req.Parameters,
		Tags:       req.Tags,
	}
}

func (a *api) createFragment(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	id, err := a.eng.Fragments.Create(r.Context(), toFragmentInput(&req))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.metrics.FragmentVersions.Inc()
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (a *api) listFragments(w http.ResponseWriter, r *http.Request) {
	var (
		frags []*models.Fragment
		err   error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		frags, err = a.eng.Fragments.ListByTag(r.Context(), tag)
	} else {
		frags, err = a.eng.Fragments.List(r.Context())
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fragments": frags})
}

func (a *api) getFragment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frag, err := a.eng.Fragments.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if frag == nil {
		writeNotFound(w, "fragment", id)
		return
	}
	placeholders := render.Placeholders(frag.Content)
	if placeholders == nil {
		placeholders = []string{}
	}
	writeJSON(w, http.StatusOK, fragmentResponse{Fragment: frag, Placeholders: placeholders})
}

func (a *api) updateFragment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req fragmentRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	if err := a.eng.Fragments.Update(r.Context(), id, toFragmentInput(&req)); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.metrics.FragmentVersions.Inc()

	frag, err := a.eng.Fragments.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if frag == nil {
		writeNotFound(w, "fragment", id)
		return
	}
	a.hooks.NotifyFragmentUpdated(id, frag.CurrentVersion)
	writeJSON(w, http.StatusOK, frag)
}

// deleteFragment answers 409 with the referencing sets when the delete is
// refused, and 200 when the fragment was deleted.
func (a *api) deleteFragment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	res, err := a.eng.Fragments.Delete(r.Context(), id, force)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !res.Success {
		a.metrics.DeletesBlocked.Inc()
		writeJSON(w, http.StatusConflict, res)
		return
	}
	a.metrics.FragmentsDeleted.Inc()
	a.hooks.NotifyFragmentDeleted(id)
	writeJSON(w, http.StatusOK, res)
}

func (a *api) listFragmentVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.eng.Fragments.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

func (a *api) getFragmentVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r)
	if !ok {
		return
	}
	v, err := a.eng.Fragments.Version(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *api) listFragmentReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := a.eng.Guard.FindReferencingSets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"referencingSets": refs})
}
