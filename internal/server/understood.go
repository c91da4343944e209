package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/douit-app/douit/internal/core"
)

func (a *api) addUnderstood(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req understoodRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}

	id, err := a.eng.Ledger.AddRecord(r.Context(), user, req.FragmentID, req.Version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.metrics.UnderstoodRecords.Inc()
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (a *api) listUnderstood(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	records, err := a.eng.Ledger.ListForUser(r.Context(), user)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// isUnderstood answers for any version, or for ?version=N only.
func (a *api) isUnderstood(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var version *int
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Error:   string(core.KindValidation),
				Message: "version must be a positive integer",
			})
			return
		}
		version = &v
	}

	understood, err := a.eng.Ledger.IsUnderstood(r.Context(), user, chi.URLParam(r, "fragmentId"), version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"understood": understood})
}

func (a *api) removeUnderstood(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := a.eng.Ledger.RemoveRecord(r.Context(), user, chi.URLParam(r, "fragmentId")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
