package pgstore

import (
	"context"
	"time"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

func (s *Storage) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO users (name, email, password_hash, phone, latitude, longitude, impact_score, roles, created_at)
VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8)
RETURNING id
`, u.Name, u.Email, u.PasswordHash, u.Phone, u.Latitude, u.Longitude, u.Roles, now).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, models.ErrEmailTaken
		}
		return nil, errors.Wrap(err, "insert user")
	}
	u.ImpactScore = 0
	u.CreatedAt = now
	return u, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *Storage) GetUserByID(ctx context.Context, id uint64) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, name, email, password_hash, phone, latitude, longitude, impact_score, roles, created_at
FROM users `+where, arg).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.Latitude, &u.Longitude,
		&u.ImpactScore, &u.Roles, &u.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}

func (s *Storage) UpdateUserProfile(ctx context.Context, id uint64, name, phone *string, lat, lng *float64) (*models.User, error) {
	_, err := s.db.Exec(ctx, `
UPDATE users SET
  name = COALESCE($2, name),
  phone = COALESCE($3, phone),
  latitude = COALESCE($4, latitude),
  longitude = COALESCE($5, longitude)
WHERE id = $1
`, id, name, phone, lat, lng)
	if err != nil {
		return nil, errors.Wrap(err, "update user profile")
	}
	return s.GetUserByID(ctx, id)
}
