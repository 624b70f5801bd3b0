package notifications

import (
	"context"

	"github.com/codemavricks/zerohunger/internal/models"
)

const defaultListLimit = 20

type Repository interface {
	ListNotifications(ctx context.Context, userID uint64, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID uint64) error
	MarkAllNotificationsRead(ctx context.Context, userID uint64) error
	CountUnreadNotifications(ctx context.Context, userID uint64) (int64, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListMine(ctx context.Context, userID uint64) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, defaultListLimit)
}

func (s *Service) MarkRead(ctx context.Context, id, userID uint64) error {
	return s.repo.MarkNotificationRead(ctx, id, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint64) error {
	return s.repo.MarkAllNotificationsRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}
