package adminapi

import (
	"encoding/json"
	"net/http"

	"octolab/internal/apperr"
)

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps an apperr.Kind onto the HTTP status the teacher's own
// error-to-status convention would use, falling back to 500 for an
// error that never went through the apperr taxonomy.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindPreflightFailed:
		status = http.StatusPreconditionFailed
	case apperr.KindUnauthenticated:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperr.KindExternalFailure:
		status = http.StatusBadGateway
	case apperr.KindCancelled:
		status = 499
	case apperr.KindNotImplemented:
		status = http.StatusNotImplemented
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
