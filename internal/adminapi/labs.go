package adminapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"octolab/internal/apperr"
	"octolab/internal/auth"
)

type createLabRequest struct {
	RecipeID uuid.UUID              `json:"recipe_id"`
	Intent   map[string]interface{} `json:"intent"`
}

type connectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (a *API) createLab(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req createLabRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("adminapi.createLab", err))
		return
	}

	lab, err := a.labs.CreateLab(r.Context(), owner, req.RecipeID, req.Intent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lab)
}

func (a *API) listLabs(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	labs, err := a.labs.ListLabs(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, labs)
}

func (a *API) getLab(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	labID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("adminapi.getLab", err))
		return
	}
	lab, err := a.labs.GetLab(r.Context(), owner, labID, a.isAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lab)
}

func (a *API) terminateLab(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	labID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("adminapi.terminateLab", err))
		return
	}
	if err := a.labs.TerminateLab(r.Context(), owner, labID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) connectLab(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	labID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.Validation("adminapi.connectLab", err))
		return
	}
	redirectURL, err := a.labs.Connect(r.Context(), owner, labID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{RedirectURL: redirectURL})
}

func (a *API) isAdmin(r *http.Request) bool {
	p, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		return false
	}
	return a.admins.IsAdmin(p)
}

func ownerID(r *http.Request) (uuid.UUID, error) {
	p, err := auth.PrincipalFromContext(r.Context())
	if err != nil {
		return uuid.UUID{}, apperr.Unauthenticated("adminapi.ownerID", err)
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return uuid.UUID{}, apperr.Unauthenticated("adminapi.ownerID", err)
	}
	return id, nil
}
