package models

import "time"

// Donation statuses. Transitions out of "available" belong to the claims
// service; donors may edit or delete a donation only while it is "available".
const (
	DonationStatusAvailable = "available"
	DonationStatusReserved  = "reserved"
	DonationStatusPickedUp  = "picked_up"
	DonationStatusDelivered = "delivered"
	DonationStatusCancelled = "cancelled"
	DonationStatusExpired   = "expired"
)

type Donation struct {
	ID          uint64     `json:"id"`
	DonorID     uint64     `json:"donor_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	QuantityKg  float64    `json:"quantity_kg"`
	Status      string     `json:"status"`
	// PickupCode is set while a claim holds the donation and cleared on
	// cancellation. It is only ever shown to the donor and the claimant.
	PickupCode *string    `json:"pickup_code,omitempty"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type DonationCreateInput struct {
	Title       string
	Description string
	QuantityKg  float64
	Latitude    float64
	Longitude   float64
	ExpiresAt   *time.Time
}

type DonationUpdateInput struct {
	Title       *string
	Description *string
	QuantityKg  *float64
	ExpiresAt   *time.Time
}
