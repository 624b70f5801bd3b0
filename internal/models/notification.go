package models

import "time"

// Notification event types.
const (
	NotificationDonationClaimed   = "donation.claimed"
	NotificationDonationDelivered = "donation.delivered"
)

type Notification struct {
	ID        uint64     `json:"id"`
	UserID    uint64     `json:"user_id"`
	Type      string     `json:"type"`
	// Data is an opaque JSON payload rendered by the client.
	Data      string     `json:"data"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
