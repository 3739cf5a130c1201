package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finboard/internal/cache"
	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/stocks"
	"finboard/internal/util"
)

var ErrSearchDisabled = errors.New("instrument search is not available")

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.\-]{1,12}$`)

// StockService serves quotes through the cache and instrument search through
// Elasticsearch. Both backends are optional; quotes fall through to the
// provider, search degrades to an empty result set.
type StockService struct {
	provider stocks.QuoteProvider
	cache    *cache.Cache
	es       *client.ESClient
	index    string
	logger   *zap.Logger
}

func NewStockService(
	provider stocks.QuoteProvider,
	quoteCache *cache.Cache,
	es *client.ESClient,
	cfg *config.Config,
	logger *zap.Logger,
) *StockService {
	return &StockService{
		provider: provider,
		cache:    quoteCache,
		es:       es,
		index:    cfg.Elasticsearch.InstrumentIndex,
		logger:   logger,
	}
}

// GetQuote returns the quote for a symbol, reading through the cache. A
// cached entry is served as-is; a provider fetch repopulates the cache with
// the default TTL.
func (s *StockService) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	cacheKey := quoteCacheKey(symbol)
	var cached models.Quote
	if s.cache.GetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	quote, err := s.provider.FetchQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, cacheKey, quote, 0)

	return quote, nil
}

// GetQuotes fetches quotes for several symbols concurrently. Symbols whose
// fetch fails are absent from the result; the call itself only fails on a
// malformed symbol.
func (s *StockService) GetQuotes(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	quotes := make(map[string]*models.Quote, len(symbols))
	if len(symbols) == 0 {
		return quotes, nil
	}

	for i, symbol := range symbols {
		normalized, err := normalizeSymbol(symbol)
		if err != nil {
			return nil, err
		}
		symbols[i] = normalized
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			quote, err := s.GetQuote(ctx, symbol)
			if err != nil {
				s.logger.Warn("Quote fetch failed",
					util.ErrorField(err),
					util.String("symbol", symbol),
				)
				return nil
			}

			mu.Lock()
			quotes[symbol] = quote
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return quotes, nil
}

type instrumentSearchResult struct {
	Hits struct {
		Hits []struct {
			Source models.Instrument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search looks up instruments by symbol or name prefix. Without an
// Elasticsearch backend it reports an empty catalog rather than failing.
func (s *StockService) Search(ctx context.Context, q string, limit int) ([]models.Instrument, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	if s.es == nil {
		s.logger.Warn("Instrument search requested without a search backend",
			util.String("query", q),
		)
		return []models.Instrument{}, nil
	}

	query := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"symbol^3", "name", "sector"},
				"type":   "bool_prefix",
			},
		},
	}

	res, err := s.es.Search(ctx, s.index, query)
	if err != nil {
		return nil, fmt.Errorf("instrument search failed: %w", err)
	}

	var result instrumentSearchResult
	if err := s.es.ParseResponse(res, &result); err != nil {
		return nil, fmt.Errorf("instrument search failed: %w", err)
	}

	instruments := make([]models.Instrument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		instruments = append(instruments, hit.Source)
	}

	return instruments, nil
}

// UpsertInstrument writes the catalog document for a symbol. Unlike Search
// this is an admin write, so a missing backend is an error.
func (s *StockService) UpsertInstrument(ctx context.Context, inst *models.Instrument) error {
	if s.es == nil {
		return ErrSearchDisabled
	}

	symbol, err := normalizeSymbol(inst.Symbol)
	if err != nil {
		return err
	}
	inst.Symbol = symbol
	inst.Name = util.SanitizeInput(inst.Name)
	if inst.Name == "" {
		return fmt.Errorf("%w: instrument name is required", ErrInvalidInput)
	}
	inst.Exchange = util.SanitizeInput(inst.Exchange)
	inst.Sector = util.SanitizeInput(inst.Sector)

	res, err := s.es.IndexDocument(ctx, s.index, inst.Symbol, inst)
	if err != nil {
		return fmt.Errorf("failed to index instrument: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to index instrument: %s", res.Status())
	}

	s.logger.Info("Instrument indexed",
		util.String("symbol", inst.Symbol),
		util.String("index", s.index),
	)

	return nil
}

func quoteCacheKey(symbol string) string {
	return "quote:" + symbol
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return "", fmt.Errorf("%w: malformed symbol %q", ErrInvalidInput, symbol)
	}
	return symbol, nil
}
