package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/codemavricks/zerohunger/internal/services/claims"
	"github.com/codemavricks/zerohunger/internal/services/donations"
)

type DonationsHandler struct {
	Donations *donations.Service
	Claims    *claims.Service
}

type donationRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	QuantityKg  float64    `json:"quantity_kg"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Create handles POST /api/v1/donations.
func (h *DonationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		jsonError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.QuantityKg <= 0 {
		jsonError(w, http.StatusBadRequest, "quantity_kg must be positive")
		return
	}

	d, err := h.Donations.Create(r.Context(), CurrentUser(r.Context()), models.DonationCreateInput{
		Title:       req.Title,
		Description: req.Description,
		QuantityKg:  req.QuantityKg,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusCreated, d)
}

// ListAvailable handles GET /api/v1/donations.
func (h *DonationsHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	out, err := h.Donations.ListAvailable(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

// Nearby handles GET /api/v1/donations/nearby?lat=&lng=&radius_km=.
func (h *DonationsHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		jsonError(w, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}
	radius, _ := strconv.ParseFloat(r.URL.Query().Get("radius_km"), 64)

	out, err := h.Donations.Nearby(r.Context(), lat, lng, radius)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

// Get handles GET /api/v1/donations/{id}. The pickup code is stripped for
// everyone but the owning donor; the claimant sees it on the claim instead.
func (h *DonationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := h.Donations.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if u := CurrentUser(r.Context()); u == nil || u.ID != d.DonorID {
		d.PickupCode = nil
	}
	jsonResponse(w, http.StatusOK, d)
}

// ListMine handles GET /api/v1/my-donations.
func (h *DonationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	out, err := h.Donations.ListMine(r.Context(), CurrentUser(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

type donationUpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	QuantityKg  *float64   `json:"quantity_kg,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Update handles PUT /api/v1/donations/{id}.
func (h *DonationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var req donationUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuantityKg != nil && *req.QuantityKg <= 0 {
		jsonError(w, http.StatusBadRequest, "quantity_kg must be positive")
		return
	}

	d, err := h.Donations.Update(r.Context(), id, CurrentUser(r.Context()), models.DonationUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		QuantityKg:  req.QuantityKg,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, d)
}

// Delete handles DELETE /api/v1/donations/{id}.
func (h *DonationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Donations.Delete(r.Context(), id, CurrentUser(r.Context())); err != nil {
		writeErr(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "donation deleted"})
}

type claimResponse struct {
	Message    string        `json:"message"`
	Claim      *models.Claim `json:"claim"`
	PickupCode string        `json:"pickup_code"`
}

// Claim handles POST /api/v1/donations/{id}/claim. The response carries the
// pickup code for the winning volunteer; everyone else gets a conflict.
func (h *DonationsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	c, err := h.Claims.Claim(r.Context(), id, CurrentUser(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}

	var code string
	if c.Donation != nil && c.Donation.PickupCode != nil {
		code = *c.Donation.PickupCode
	}
	jsonResponse(w, http.StatusCreated, claimResponse{
		Message:    "Donation claimed. Show the pickup code to the donor at handoff.",
		Claim:      c,
		PickupCode: code,
	})
}
