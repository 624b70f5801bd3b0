package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encode response", "error", err.Error())
		}
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeErr maps domain errors to HTTP statuses. Anything outside the known
// set is an internal failure: logged server-side, opaque to the client.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		jsonError(w, http.StatusNotFound, models.ErrNotFound.Error())
	case errors.Is(err, models.ErrForbidden):
		jsonError(w, http.StatusForbidden, models.ErrForbidden.Error())
	case errors.Is(err, models.ErrEmailTaken):
		jsonError(w, http.StatusConflict, models.ErrEmailTaken.Error())
	case errors.Is(err, models.ErrAlreadyClaimed):
		jsonError(w, http.StatusConflict, models.ErrAlreadyClaimed.Error())
	case errors.Is(err, models.ErrInvalidCredential):
		jsonError(w, http.StatusUnprocessableEntity, models.ErrInvalidCredential.Error())
	case errors.Is(err, models.ErrInvalidState):
		jsonError(w, http.StatusConflict, models.ErrInvalidState.Error())
	case errors.Is(err, models.ErrWorkflowViolation):
		jsonError(w, http.StatusConflict, models.ErrWorkflowViolation.Error())
	default:
		slog.Error("request failed", "error", err.Error())
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, models.ErrNotFound
	}
	return id, nil
}
