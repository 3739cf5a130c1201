package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finboard/internal/models"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

var ErrWatchlistItemNotFound = errors.New("watchlist item not found")

// WatchlistEntry pairs a stored item with its current quote. Quote is nil
// when the provider could not answer; the listing itself never fails on a
// quote fetch.
type WatchlistEntry struct {
	Item  *models.WatchlistItem `json:"item"`
	Quote *models.Quote         `json:"quote,omitempty"`
}

// WatchlistService manages per-user symbol lists and decorates them with
// quotes on read.
type WatchlistService struct {
	repo   scylla.WatchlistRepository
	stocks *StockService
	logger *zap.Logger
}

func NewWatchlistService(repo scylla.WatchlistRepository, stockService *StockService, logger *zap.Logger) *WatchlistService {
	return &WatchlistService{
		repo:   repo,
		stocks: stockService,
		logger: logger,
	}
}

// List returns the user's watchlist with quotes fetched concurrently.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]*WatchlistEntry, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}

	entries := make([]*WatchlistEntry, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			entry := &WatchlistEntry{Item: item}
			quote, err := s.stocks.GetQuote(ctx, item.Symbol)
			if err != nil {
				s.logger.Warn("Watchlist quote unavailable",
					util.ErrorField(err),
					util.String("symbol", item.Symbol),
					util.String("user_id", userID),
				)
			} else {
				entry.Quote = quote
			}
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Add puts a symbol on the user's watchlist. Re-adding an existing symbol
// overwrites the note and timestamp.
func (s *WatchlistService) Add(ctx context.Context, userID, symbol, note string) (*models.WatchlistItem, error) {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if len(note) > 256 {
		return nil, fmt.Errorf("%w: note is too long", ErrInvalidInput)
	}

	item := &models.WatchlistItem{
		UserID: userID,
		Symbol: normalized,
		Note:   util.SanitizeInput(note),
	}

	if err := s.repo.Add(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to add watchlist item: %w", err)
	}

	s.logger.Info("Watchlist item added",
		util.String("user_id", userID),
		util.String("symbol", normalized),
	)

	return item, nil
}

// Remove deletes a symbol from the user's watchlist.
func (s *WatchlistService) Remove(ctx context.Context, userID, symbol string) error {
	normalized, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}

	if _, err := s.repo.Get(ctx, userID, normalized); err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrWatchlistItemNotFound
		}
		return fmt.Errorf("failed to get watchlist item: %w", err)
	}

	if err := s.repo.Delete(ctx, userID, normalized); err != nil {
		return fmt.Errorf("failed to delete watchlist item: %w", err)
	}

	s.logger.Info("Watchlist item removed",
		util.String("user_id", userID),
		util.String("symbol", normalized),
	)

	return nil
}
