package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService reads and acknowledges in-app notifications.
type NotificationService struct {
	repo   scylla.NotificationRepository
	logger *zap.Logger
}

func NewNotificationService(repo scylla.NotificationRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	notifications, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead acknowledges a notification. Acknowledging one that is already
// read is a no-op.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	notification, err := s.repo.Get(ctx, userID, notificationID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("failed to get notification: %w", err)
	}
	if notification.Read {
		return nil
	}

	if err := s.repo.MarkRead(ctx, userID, notificationID); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	s.logger.Info("Notification read",
		util.String("user_id", userID),
		util.String("notification_id", notificationID),
	)

	return nil
}
