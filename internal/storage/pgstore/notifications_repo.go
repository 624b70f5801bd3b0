package pgstore

import (
	"context"
	"time"

	"github.com/codemavricks/zerohunger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func insertNotificationTx(ctx context.Context, tx pgx.Tx, userID uint64, typ, data string, now time.Time) error {
	_, err := tx.Exec(ctx, `
INSERT INTO notifications (user_id, type, data, created_at)
VALUES ($1,$2,$3,$4)
`, userID, typ, data, now)
	return errors.Wrap(err, "insert notification")
}

func (s *Storage) ListNotifications(ctx context.Context, userID uint64, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, type, data, read_at, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Data, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, &n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) MarkNotificationRead(ctx context.Context, id, userID uint64) error {
	var ownerID uint64
	err := s.db.QueryRow(ctx, `SELECT user_id FROM notifications WHERE id = $1`, id).Scan(&ownerID)
	if err == pgx.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "select notification")
	}
	if ownerID != userID {
		return models.ErrForbidden
	}
	_, err = s.db.Exec(ctx, `UPDATE notifications SET read_at = now() WHERE id = $1`, id)
	return errors.Wrap(err, "mark notification read")
}

func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID uint64) error {
	_, err := s.db.Exec(ctx, `UPDATE notifications SET read_at = now() WHERE user_id = $1 AND read_at IS NULL`, userID)
	return errors.Wrap(err, "mark all notifications read")
}

func (s *Storage) CountUnreadNotifications(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	return n, nil
}
