package claims

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/codemavricks/zerohunger/internal/broker/messages"
	"github.com/codemavricks/zerohunger/internal/cache"
	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/pkg/errors"
)

const maxNotesLen = 500

type Repository interface {
	ReserveDonation(ctx context.Context, donationID, volunteerID uint64, pickupCode string) (*models.Claim, error)
	CancelClaim(ctx context.Context, claimID, volunteerID uint64) error
	MarkPickedUp(ctx context.Context, claimID, volunteerID uint64, code string) (*models.Claim, error)
	MarkDelivered(ctx context.Context, claimID, volunteerID uint64, notes string) (*models.Claim, error)
	ListClaimsByVolunteer(ctx context.Context, volunteerID uint64) ([]*models.Claim, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	producer Publisher
	topic    string

	codegen func() (string, error)
}

func New(repo Repository, c cache.BytesCache, producer Publisher, topic string) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		producer: producer,
		topic:    topic,
		codegen:  GeneratePickupCode,
	}
}

// GeneratePickupCode returns a fresh zero-padded 6-digit code from a
// crypto-secure source. Collisions across donations are fine: the code is
// only ever checked against one specific claim.
func GeneratePickupCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", errors.Wrap(err, "generate pickup code")
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Claim reserves the donation for the caller. At most one volunteer wins;
// the storage layer serializes racing attempts on the donation row and the
// loser comes back with ErrAlreadyClaimed. The returned claim carries the
// donation with its pickup code, to be surfaced only to the caller and the
// donor.
func (s *Service) Claim(ctx context.Context, donationID uint64, caller *models.User) (*models.Claim, error) {
	if !caller.HasRole(models.RoleVolunteer) {
		return nil, models.ErrForbidden
	}

	code, err := s.codegen()
	if err != nil {
		return nil, err
	}

	c, err := s.repo.ReserveDonation(ctx, donationID, caller.ID, code)
	if err != nil {
		return nil, err
	}

	s.invalidateListing(ctx)

	ev := messages.NewDonationEvent(messages.TypeDonationClaimed, c.DonationID, c.Donation.DonorID)
	ev.DonationTitle = c.Donation.Title
	ev.ClaimID = c.ID
	ev.VolunteerID = c.VolunteerID
	s.publish(ctx, ev)

	return c, nil
}

// Cancel releases the caller's claim and puts the donation back on the
// market with its pickup code cleared.
func (s *Service) Cancel(ctx context.Context, claimID uint64, caller *models.User) error {
	if err := s.repo.CancelClaim(ctx, claimID, caller.ID); err != nil {
		return err
	}
	s.invalidateListing(ctx)
	return nil
}

// MarkPickedUp advances the claim on a matching pickup code. Wrong codes
// are decisive failures: no state changes, no internal retries, and the
// stored code stays valid for another attempt.
func (s *Service) MarkPickedUp(ctx context.Context, claimID uint64, caller *models.User, code string) (*models.Claim, error) {
	if code == "" {
		return nil, models.ErrInvalidCredential
	}
	return s.repo.MarkPickedUp(ctx, claimID, caller.ID, code)
}

// MarkDelivered closes out the claim and awards impact points to both
// sides. Rejected with ErrWorkflowViolation unless the claim is currently
// picked up, which also makes double delivery impossible.
func (s *Service) MarkDelivered(ctx context.Context, claimID uint64, caller *models.User, notes string) (*models.Claim, error) {
	if len(notes) > maxNotesLen {
		return nil, errors.Errorf("notes too long (max %d characters)", maxNotesLen)
	}

	c, err := s.repo.MarkDelivered(ctx, claimID, caller.ID, notes)
	if err != nil {
		return nil, err
	}

	ev := messages.NewDonationEvent(messages.TypeDonationDelivered, c.DonationID, c.Donation.DonorID)
	ev.DonationTitle = c.Donation.Title
	ev.ClaimID = c.ID
	ev.VolunteerID = c.VolunteerID
	s.publish(ctx, ev)

	return c, nil
}

func (s *Service) MyClaims(ctx context.Context, caller *models.User) ([]*models.Claim, error) {
	return s.repo.ListClaimsByVolunteer(ctx, caller.ID)
}

func (s *Service) invalidateListing(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, cache.AvailableDonationsKey)
	}
}

// publish is fire-and-forget: the reservation has already committed and a
// broker hiccup must not surface to the caller.
func (s *Service) publish(ctx context.Context, ev messages.DonationEvent) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal donation event", "type", ev.Type, "error", err.Error())
		return
	}
	key := []byte(fmt.Sprintf("%d", ev.DonationID))
	if err := s.producer.Publish(ctx, s.topic, key, b); err != nil {
		slog.Error("publish donation event", "type", ev.Type, "donation_id", ev.DonationID, "error", err.Error())
	}
}
