package pgstore

import (
	"context"
	"time"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const donationColumns = `
  id, donor_id, title, description, quantity_kg,
  status, pickup_code, latitude, longitude,
  expires_at, created_at, updated_at`

func scanDonation(row pgx.Row) (*models.Donation, error) {
	var d models.Donation
	err := row.Scan(
		&d.ID, &d.DonorID, &d.Title, &d.Description, &d.QuantityKg,
		&d.Status, &d.PickupCode, &d.Latitude, &d.Longitude,
		&d.ExpiresAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan donation")
	}
	return &d, nil
}

func (s *Storage) CreateDonation(ctx context.Context, donorID uint64, in models.DonationCreateInput) (*models.Donation, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
INSERT INTO donations (donor_id, title, description, quantity_kg, status, latitude, longitude, expires_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING `+donationColumns,
		donorID, in.Title, in.Description, in.QuantityKg, models.DonationStatusAvailable,
		in.Latitude, in.Longitude, in.ExpiresAt, now)
	d, err := scanDonation(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert donation")
	}
	return d, nil
}

func (s *Storage) GetDonationByID(ctx context.Context, id uint64) (*models.Donation, error) {
	return scanDonation(s.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id))
}

// ListAvailableDonations returns donations open for claiming, newest first.
// Donations past their expiry are filtered here even before the sweeper
// flips their status.
func (s *Storage) ListAvailableDonations(ctx context.Context) ([]*models.Donation, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+donationColumns+`
FROM donations
WHERE status = $1 AND (expires_at IS NULL OR expires_at > now())
ORDER BY created_at DESC
`, models.DonationStatusAvailable)
	if err != nil {
		return nil, errors.Wrap(err, "select available donations")
	}
	defer rows.Close()
	return collectDonations(rows)
}

func (s *Storage) ListDonationsByDonor(ctx context.Context, donorID uint64) ([]*models.Donation, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+donationColumns+`
FROM donations
WHERE donor_id = $1
ORDER BY created_at DESC
`, donorID)
	if err != nil {
		return nil, errors.Wrap(err, "select donor donations")
	}
	defer rows.Close()
	return collectDonations(rows)
}

func collectDonations(rows pgx.Rows) ([]*models.Donation, error) {
	out := make([]*models.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateDonation applies a donor edit. The row is locked so the check
// against concurrent claiming is race-free: edits are legal only while the
// donation is still available.
func (s *Storage) UpdateDonation(ctx context.Context, id, donorID uint64, in models.DonationUpdateInput) (*models.Donation, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := scanDonation(tx.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if d.DonorID != donorID {
		return nil, models.ErrForbidden
	}
	if d.Status != models.DonationStatusAvailable {
		return nil, models.ErrInvalidState
	}

	d, err = scanDonation(tx.QueryRow(ctx, `
UPDATE donations SET
  title = COALESCE($2, title),
  description = COALESCE($3, description),
  quantity_kg = COALESCE($4, quantity_kg),
  expires_at = COALESCE($5, expires_at),
  updated_at = now()
WHERE id = $1
RETURNING `+donationColumns, id, in.Title, in.Description, in.QuantityKg, in.ExpiresAt))
	if err != nil {
		return nil, errors.Wrap(err, "update donation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return d, nil
}

func (s *Storage) DeleteDonation(ctx context.Context, id, donorID uint64) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := scanDonation(tx.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if d.DonorID != donorID {
		return models.ErrForbidden
	}
	if d.Status != models.DonationStatusAvailable {
		return models.ErrInvalidState
	}

	if _, err := tx.Exec(ctx, `DELETE FROM donations WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "delete donation")
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ExpireDueDonations flips available donations past their expiry to
// "expired" and returns them. SKIP LOCKED keeps concurrent sweeper
// instances and in-flight claims from colliding: a donation currently
// being claimed is simply left for the next cycle.
func (s *Storage) ExpireDueDonations(ctx context.Context, now time.Time, limit int) ([]*models.Donation, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+donationColumns+`
FROM donations
WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
ORDER BY expires_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, models.DonationStatusAvailable, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due donations")
	}
	picked, err := collectDonations(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, d := range picked {
		if _, err := tx.Exec(ctx, `UPDATE donations SET status = $2, updated_at = now() WHERE id = $1`,
			d.ID, models.DonationStatusExpired); err != nil {
			return nil, errors.Wrap(err, "expire donation")
		}
		d.Status = models.DonationStatusExpired
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
