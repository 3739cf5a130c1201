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

type watchlistRepository struct {
	client *ScyllaClient
}

func NewWatchlistRepository(client *ScyllaClient) WatchlistRepository {
	return &watchlistRepository{
		client: client,
	}
}

func (r *watchlistRepository) Add(ctx context.Context, item *models.WatchlistItem) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	query := r.client.Prepared.AddWatchlistItem.Bind(
		item.UserID, item.Symbol, item.Note, item.AddedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to add watchlist item",
			zap.String("user_id", item.UserID),
			zap.String("symbol", item.Symbol),
			zap.Error(err))
		return fmt.Errorf("failed to add watchlist item: %w", err)
	}

	return nil
}

func (r *watchlistRepository) Get(ctx context.Context, userID, symbol string) (*models.WatchlistItem, error) {
	item := &models.WatchlistItem{}

	query := r.client.Prepared.GetWatchlistItem.Bind(userID, symbol).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&item.UserID, &item.Symbol, &item.Note, &item.AddedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("watchlist item %s: %w", symbol, ErrNotFound)
		}
		util.Error("Failed to get watchlist item",
			zap.String("user_id", userID),
			zap.String("symbol", symbol),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get watchlist item: %w", err)
	}

	return item, nil
}

func (r *watchlistRepository) List(ctx context.Context, userID string) ([]*models.WatchlistItem, error) {
	iter := r.client.Prepared.ListWatchlist.Bind(userID).WithContext(ctx).Iter()

	var items []*models.WatchlistItem
	for {
		item := &models.WatchlistItem{}
		if !iter.Scan(&item.UserID, &item.Symbol, &item.Note, &item.AddedAt) {
			break
		}
		items = append(items, item)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list watchlist",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}

	return items, nil
}

func (r *watchlistRepository) Delete(ctx context.Context, userID, symbol string) error {
	query := r.client.Prepared.DeleteWatchlistItem.Bind(userID, symbol).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to delete watchlist item",
			zap.String("user_id", userID),
			zap.String("symbol", symbol),
			zap.Error(err))
		return fmt.Errorf("failed to delete watchlist item: %w", err)
	}

	return nil
}
