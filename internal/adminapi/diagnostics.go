package adminapi

import (
	"net/http"

	"octolab/internal/apperr"
	"octolab/internal/enum"
	"octolab/internal/runtime"
)

type runtimeStatusResponse struct {
	Default  enum.RuntimeType  `json:"default"`
	Override *enum.RuntimeType `json:"override,omitempty"`
}

type setRuntimeRequest struct {
	Override *enum.RuntimeType `json:"override"`
}

func (a *API) doctor(w http.ResponseWriter, r *http.Request) {
	rt, err := a.currentRuntime(r)
	if err != nil {
		writeError(w, err)
		return
	}
	report, err := rt.Doctor(r.Context())
	if err != nil {
		writeError(w, apperr.Internal("adminapi.doctor", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) smoke(w http.ResponseWriter, r *http.Request) {
	rt, err := a.currentRuntime(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := rt.Smoke(r.Context())
	if err != nil {
		writeError(w, apperr.Internal("adminapi.smoke", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) getRuntime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, runtimeStatusResponse{
		Default:  a.defaultRuntime,
		Override: a.selector.Override(),
	})
}

func (a *API) setRuntime(w http.ResponseWriter, r *http.Request) {
	var req setRuntimeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("adminapi.setRuntime", err))
		return
	}
	if err := a.selector.SetOverride(r.Context(), req.Override); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runtimeStatusResponse{
		Default:  a.defaultRuntime,
		Override: a.selector.Override(),
	})
}

// currentRuntime builds the runtime instance the doctor/smoke endpoints
// operate on without going through Selector.Effective, since those
// endpoints exist specifically to diagnose a runtime that may
// currently be failing its own preflight - gating them on a passing
// doctor would make a broken runtime impossible to inspect.
func (a *API) currentRuntime(r *http.Request) (runtime.Runtime, error) {
	t := a.defaultRuntime
	if override := a.selector.Override(); override != nil {
		t = *override
	}
	rt, err := runtime.Create(r.Context(), t, a.runtimeCfg)
	if err != nil {
		return nil, apperr.Internal("adminapi.currentRuntime", err)
	}
	return rt, nil
}
