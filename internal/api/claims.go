package api

import (
	"net/http"

	"github.com/codemavricks/zerohunger/internal/services/claims"
)

type ClaimsHandler struct {
	Claims *claims.Service
}

// ListMine handles GET /api/v1/claims.
func (h *ClaimsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	out, err := h.Claims.MyClaims(r.Context(), CurrentUser(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

type pickupRequest struct {
	PickupCode string `json:"pickup_code"`
}

// Pickup handles POST /api/v1/claims/{id}/pickup.
func (h *ClaimsHandler) Pickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req pickupRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Claims.MarkPickedUp(r.Context(), id, CurrentUser(r.Context()), req.PickupCode)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

type deliverRequest struct {
	Notes string `json:"notes"`
}

// Deliver handles POST /api/v1/claims/{id}/deliver.
func (h *ClaimsHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req deliverRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Claims.MarkDelivered(r.Context(), id, CurrentUser(r.Context()), req.Notes)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Cancel handles POST /api/v1/claims/{id}/cancel.
func (h *ClaimsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Claims.Cancel(r.Context(), id, CurrentUser(r.Context())); err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "claim cancelled"})
}
