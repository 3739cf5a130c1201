package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finboard/internal/client"
	"finboard/internal/models"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

var ErrAnalyticsDisabled = errors.New("activity analytics is not available")

// ActionStat is one aggregate row of the admin activity report: how many
// times an action happened on a given day.
type ActionStat struct {
	Action string    `json:"action"`
	Day    time.Time `json:"day"`
	Count  uint64    `json:"count"`
}

// ActivityService reads the per-user activity log and the ClickHouse
// aggregates. ClickHouse is optional; Stats reports a stable failure when it
// is absent.
type ActivityService struct {
	repo   scylla.ActivityRepository
	ch     *client.ClickHouseClient
	logger *zap.Logger
}

func NewActivityService(repo scylla.ActivityRepository, ch *client.ClickHouseClient, logger *zap.Logger) *ActivityService {
	return &ActivityService{
		repo:   repo,
		ch:     ch,
		logger: logger,
	}
}

// ListByUser pages through a user's activity log, newest first. The page
// token is opaque to clients.
func (s *ActivityService) ListByUser(ctx context.Context, userID string, limit int, pageToken string) ([]*models.ActivityEntry, string, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var pageState []byte
	if pageToken != "" {
		var err error
		pageState, err = hex.DecodeString(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("%w: invalid page token", ErrInvalidInput)
		}
	}

	entries, nextPageState, err := s.repo.ListByUser(ctx, userID, limit, pageState)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list activity: %w", err)
	}

	nextPageToken := ""
	if len(nextPageState) > 0 {
		nextPageToken = hex.EncodeToString(nextPageState)
	}

	return entries, nextPageToken, nil
}

// Stats aggregates activity events per action per day over the trailing
// window.
func (s *ActivityService) Stats(ctx context.Context, days int) ([]ActionStat, error) {
	if s.ch == nil {
		return nil, ErrAnalyticsDisabled
	}
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	query := `
		SELECT action, toDate(created_at) AS day, count() AS events
		FROM activity_events
		WHERE created_at >= ?
		GROUP BY action, day
		ORDER BY day DESC, events DESC`

	rows, err := s.ch.QueryRows(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity stats: %w", err)
	}
	defer rows.Close()

	stats := make([]ActionStat, 0, 64)
	for rows.Next() {
		var stat ActionStat
		if err := rows.Scan(&stat.Action, &stat.Day, &stat.Count); err != nil {
			return nil, fmt.Errorf("failed to scan activity stats: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity stats: %w", err)
	}

	s.logger.Debug("Activity stats computed",
		util.Int("rows", len(stats)),
		util.Int("days", days),
	)

	return stats, nil
}
