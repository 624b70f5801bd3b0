package messages

import (
	"time"

	"github.com/google/uuid"
)

// Event types published to the donation events topic. Delivery to push
// channels is a downstream concern; the core publishes and forgets.
const (
	TypeDonationClaimed   = "donation.claimed"
	TypeDonationDelivered = "donation.delivered"
	TypeDonationExpired   = "donation.expired"
)

// DonationEvent is the envelope for every donation lifecycle event. The
// pickup code never travels on the broker.
type DonationEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	DonationID    uint64 `json:"donation_id"`
	DonationTitle string `json:"donation_title,omitempty"`
	DonorID       uint64 `json:"donor_id"`

	ClaimID     uint64 `json:"claim_id,omitempty"`
	VolunteerID uint64 `json:"volunteer_id,omitempty"`
}

func NewDonationEvent(typ string, donationID, donorID uint64) DonationEvent {
	return DonationEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		DonationID: donationID,
		DonorID:    donorID,
	}
}
