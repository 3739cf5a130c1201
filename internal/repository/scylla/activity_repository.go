package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finboard/internal/bucketing"
	"finboard/internal/models"
	"finboard/internal/util"
)

type activityRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewActivityRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) ActivityRepository {
	return &activityRepository{
		client:  client,
		buckets: buckets,
	}
}

// Insert appends one entry. Rows are never updated or deleted afterwards.
func (r *activityRepository) Insert(ctx context.Context, entry *models.ActivityEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UserBucket = r.buckets.GetActivityBucket(entry.UserID)

	query := r.client.Prepared.InsertActivity.Bind(
		entry.UserBucket, entry.UserID, entry.CreatedAt, entry.EntryID,
		entry.Action, entry.Details, entry.Email, entry.FirstName,
		entry.LastName, entry.IP, entry.UserAgent).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to insert activity entry",
			zap.String("user_id", entry.UserID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to insert activity entry: %w", err)
	}

	return nil
}

// ListByUser returns one page of entries, newest first, plus the paging
// state for the next call. Empty state means the listing is exhausted.
func (r *activityRepository) ListByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*models.ActivityEntry, []byte, error) {
	if limit <= 0 {
		limit = 50
	}
	bucket := r.buckets.GetActivityBucket(userID)

	query := r.client.Prepared.ListActivityByUser.Bind(bucket, userID).
		PageSize(limit).
		PageState(pageState).
		WithContext(ctx)

	iter := query.Iter()
	nextPageState := iter.PageState()

	entries := make([]*models.ActivityEntry, 0, limit)
	for {
		entry := &models.ActivityEntry{}
		if !iter.Scan(
			&entry.UserBucket, &entry.UserID, &entry.CreatedAt, &entry.EntryID,
			&entry.Action, &entry.Details, &entry.Email, &entry.FirstName,
			&entry.LastName, &entry.IP, &entry.UserAgent) {
			break
		}
		entries = append(entries, entry)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list activity entries",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to list activity entries: %w", err)
	}

	return entries, nextPageState, nil
}
