package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/util"
)

type notificationRepository struct {
	client *ScyllaClient
}

func NewNotificationRepository(client *ScyllaClient) NotificationRepository {
	return &notificationRepository{
		client: client,
	}
}

func (r *notificationRepository) Insert(ctx context.Context, notification *models.Notification) error {
	// Time-based UUID keeps the newest-first clustering order addressable
	if notification.NotificationID == "" {
		notification.NotificationID = gocql.TimeUUID().String()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.InsertNotification.Bind(
		notification.UserID, notification.NotificationID, notification.Kind,
		notification.Title, notification.Body, notification.Read,
		notification.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to insert notification",
			zap.String("user_id", notification.UserID),
			zap.String("kind", notification.Kind),
			zap.Error(err))
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

func (r *notificationRepository) Get(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	notification := &models.Notification{}

	query := r.client.Prepared.GetNotification.Bind(userID, notificationID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&notification.UserID, &notification.NotificationID, &notification.Kind,
		&notification.Title, &notification.Body, &notification.Read,
		&notification.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
		}
		util.Error("Failed to get notification",
			zap.String("user_id", userID),
			zap.String("notification_id", notificationID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return notification, nil
}

func (r *notificationRepository) List(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := r.client.Prepared.ListNotifications.Bind(userID).
		PageSize(limit).
		WithContext(ctx).Iter()

	notifications := make([]*models.Notification, 0, limit)
	for len(notifications) < limit {
		notification := &models.Notification{}
		if !iter.Scan(
			&notification.UserID, &notification.NotificationID, &notification.Kind,
			&notification.Title, &notification.Body, &notification.Read,
			&notification.CreatedAt) {
			break
		}
		notifications = append(notifications, notification)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list notifications",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	query := r.client.Prepared.MarkNotificationRead.Bind(userID, notificationID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark notification as read",
			zap.String("user_id", userID),
			zap.String("notification_id", notificationID),
			zap.Error(err))
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}

	return nil
}
