package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const claimColumns = `
  id, donation_id, volunteer_id, status,
  picked_up_at, delivered_at, notes, created_at, updated_at`

func scanClaim(row pgx.Row) (*models.Claim, error) {
	var c models.Claim
	err := row.Scan(
		&c.ID, &c.DonationID, &c.VolunteerID, &c.Status,
		&c.PickedUpAt, &c.DeliveredAt, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan claim")
	}
	return &c, nil
}

// ReserveDonation grants the claim if and only if the donation is still
// available. The donation row is locked for the duration of the transaction:
// of two racing volunteers, one blocks on the lock, then re-reads a
// "reserved" status and loses with ErrAlreadyClaimed. The status change, the
// pickup code, the claim row and the donor notification commit as one unit
// or not at all.
func (s *Storage) ReserveDonation(ctx context.Context, donationID, volunteerID uint64, pickupCode string) (*models.Claim, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := scanDonation(tx.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1 FOR UPDATE`, donationID))
	if err != nil {
		return nil, err
	}
	if d.Status != models.DonationStatusAvailable {
		return nil, models.ErrAlreadyClaimed
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE donations SET status = $2, pickup_code = $3, updated_at = $4 WHERE id = $1`,
		d.ID, models.DonationStatusReserved, pickupCode, now); err != nil {
		return nil, errors.Wrap(err, "reserve donation")
	}
	d.Status = models.DonationStatusReserved
	d.PickupCode = &pickupCode
	d.UpdatedAt = now

	c, err := scanClaim(tx.QueryRow(ctx, `
INSERT INTO claims (donation_id, volunteer_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
RETURNING `+claimColumns, d.ID, volunteerID, models.ClaimStatusActive, now))
	if err != nil {
		return nil, errors.Wrap(err, "insert claim")
	}
	c.Donation = d

	var volunteerName string
	if err := tx.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, volunteerID).Scan(&volunteerName); err != nil {
		return nil, errors.Wrap(err, "select volunteer")
	}

	// The donor notification commits with the claim: a failed insert rolls
	// the whole reservation back. Push delivery stays outside this boundary.
	data, _ := json.Marshal(map[string]any{
		"donation_id":    d.ID,
		"donation_title": d.Title,
		"volunteer_name": volunteerName,
		"pickup_code":    pickupCode,
		"message":        fmt.Sprintf("Your donation has been claimed by %s", volunteerName),
	})
	if err := insertNotificationTx(ctx, tx, d.DonorID, models.NotificationDonationClaimed, string(data), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return c, nil
}

// lockClaim loads a claim and locks its donation row, serializing
// fulfillment transitions against concurrent cancel/claim on the same
// donation.
func lockClaim(ctx context.Context, tx pgx.Tx, claimID uint64) (*models.Claim, error) {
	c, err := scanClaim(tx.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, claimID))
	if err != nil {
		return nil, err
	}
	d, err := scanDonation(tx.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1 FOR UPDATE`, c.DonationID))
	if err != nil {
		return nil, err
	}
	c.Donation = d
	return c, nil
}

// CancelClaim reverts the donation to available with a cleared pickup code
// and marks the claim cancelled, atomically. The donation is never left
// reserved without a live claim.
func (s *Storage) CancelClaim(ctx context.Context, claimID, volunteerID uint64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := lockClaim(ctx, tx, claimID)
	if err != nil {
		return err
	}
	if c.VolunteerID != volunteerID {
		return models.ErrForbidden
	}
	if c.Status != models.ClaimStatusActive && c.Status != models.ClaimStatusPickedUp {
		return models.ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `UPDATE claims SET status = $2, updated_at = now() WHERE id = $1`,
		c.ID, models.ClaimStatusCancelled); err != nil {
		return errors.Wrap(err, "cancel claim")
	}
	if _, err := tx.Exec(ctx, `UPDATE donations SET status = $2, pickup_code = NULL, updated_at = now() WHERE id = $1`,
		c.DonationID, models.DonationStatusAvailable); err != nil {
		return errors.Wrap(err, "release donation")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// MarkPickedUp validates the supplied pickup code against the stored one and
// advances claim and donation to picked_up together. A wrong code leaves
// both records untouched and does not invalidate the stored code.
func (s *Storage) MarkPickedUp(ctx context.Context, claimID, volunteerID uint64, code string) (*models.Claim, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := lockClaim(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	if c.VolunteerID != volunteerID {
		return nil, models.ErrForbidden
	}
	if c.Status != models.ClaimStatusActive {
		return nil, models.ErrInvalidState
	}
	if c.Donation.PickupCode == nil || *c.Donation.PickupCode != code {
		return nil, models.ErrInvalidCredential
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE claims SET status = $2, picked_up_at = $3, updated_at = $3 WHERE id = $1`,
		c.ID, models.ClaimStatusPickedUp, now); err != nil {
		return nil, errors.Wrap(err, "mark claim picked up")
	}
	if _, err := tx.Exec(ctx, `UPDATE donations SET status = $2, updated_at = $3 WHERE id = $1`,
		c.DonationID, models.DonationStatusPickedUp, now); err != nil {
		return nil, errors.Wrap(err, "mark donation picked up")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	c.Status = models.ClaimStatusPickedUp
	c.PickedUpAt = &now
	c.UpdatedAt = now
	c.Donation.Status = models.DonationStatusPickedUp
	return c, nil
}

// MarkDelivered closes the claim. Claim, donation, both impact scores and
// the donor notification are committed as one unit.
func (s *Storage) MarkDelivered(ctx context.Context, claimID, volunteerID uint64, notes string) (*models.Claim, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := lockClaim(ctx, tx, claimID)
	if err != nil {
		return nil, err
	}
	if c.VolunteerID != volunteerID {
		return nil, models.ErrForbidden
	}
	if c.Status != models.ClaimStatusPickedUp {
		return nil, models.ErrWorkflowViolation
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE claims SET status = $2, delivered_at = $3, notes = $4, updated_at = $3 WHERE id = $1`,
		c.ID, models.ClaimStatusDelivered, now, notes); err != nil {
		return nil, errors.Wrap(err, "mark claim delivered")
	}
	if _, err := tx.Exec(ctx, `UPDATE donations SET status = $2, updated_at = $3 WHERE id = $1`,
		c.DonationID, models.DonationStatusDelivered, now); err != nil {
		return nil, errors.Wrap(err, "mark donation delivered")
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET impact_score = impact_score + $2 WHERE id = $1`,
		c.VolunteerID, models.VolunteerPoints(c.Donation.QuantityKg)); err != nil {
		return nil, errors.Wrap(err, "add volunteer impact")
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET impact_score = impact_score + $2 WHERE id = $1`,
		c.Donation.DonorID, models.DonorPoints(c.Donation.QuantityKg)); err != nil {
		return nil, errors.Wrap(err, "add donor impact")
	}

	data, _ := json.Marshal(map[string]any{
		"donation_id":    c.DonationID,
		"donation_title": c.Donation.Title,
		"message":        "Your donation has been delivered! Thank you for fighting hunger.",
	})
	if err := insertNotificationTx(ctx, tx, c.Donation.DonorID, models.NotificationDonationDelivered, string(data), now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	c.Status = models.ClaimStatusDelivered
	c.DeliveredAt = &now
	c.Notes = &notes
	c.UpdatedAt = now
	c.Donation.Status = models.DonationStatusDelivered
	return c, nil
}

func (s *Storage) GetClaimByID(ctx context.Context, id uint64) (*models.Claim, error) {
	c, err := scanClaim(s.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	d, err := s.GetDonationByID(ctx, c.DonationID)
	if err != nil {
		return nil, err
	}
	c.Donation = d
	return c, nil
}

func (s *Storage) ListClaimsByVolunteer(ctx context.Context, volunteerID uint64) ([]*models.Claim, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  c.id, c.donation_id, c.volunteer_id, c.status,
  c.picked_up_at, c.delivered_at, c.notes, c.created_at, c.updated_at,
  d.id, d.donor_id, d.title, d.description, d.quantity_kg,
  d.status, d.pickup_code, d.latitude, d.longitude,
  d.expires_at, d.created_at, d.updated_at
FROM claims c
JOIN donations d ON d.id = c.donation_id
WHERE c.volunteer_id = $1
ORDER BY c.created_at DESC
`, volunteerID)
	if err != nil {
		return nil, errors.Wrap(err, "select claims")
	}
	defer rows.Close()

	out := make([]*models.Claim, 0)
	for rows.Next() {
		var c models.Claim
		var d models.Donation
		if err := rows.Scan(
			&c.ID, &c.DonationID, &c.VolunteerID, &c.Status,
			&c.PickedUpAt, &c.DeliveredAt, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
			&d.ID, &d.DonorID, &d.Title, &d.Description, &d.QuantityKg,
			&d.Status, &d.PickupCode, &d.Latitude, &d.Longitude,
			&d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan claim row")
		}
		c.Donation = &d
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
