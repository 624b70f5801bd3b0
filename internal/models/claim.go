package models

import "time"

// Claim statuses. Transitions are strictly forward:
// active -> picked_up -> delivered, with cancelled reachable from
// active or picked_up. Nothing else is legal.
const (
	ClaimStatusActive    = "active"
	ClaimStatusPickedUp  = "picked_up"
	ClaimStatusDelivered = "delivered"
	ClaimStatusCancelled = "cancelled"
)

type Claim struct {
	ID          uint64     `json:"id"`
	DonationID  uint64     `json:"donation_id"`
	VolunteerID uint64     `json:"volunteer_id"`
	Status      string     `json:"status"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Donation is the query-time join, populated by the storage layer.
	Donation *Donation `json:"donation,omitempty"`
}

// Impact points awarded when a claim is delivered. Truncation toward zero
// matches the int narrowing of the consuming mobile clients.
func VolunteerPoints(quantityKg float64) int { return int(quantityKg * 2) }

func DonorPoints(quantityKg float64) int { return int(quantityKg) }
