package stocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"finboard/internal/config"
	"finboard/internal/models"
)

// ErrUnknownSymbol means the vendor has no instrument under that ticker.
var ErrUnknownSymbol = errors.New("unknown symbol")

// QuoteProvider fetches live quotes from a market data vendor.
type QuoteProvider interface {
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

type HTTPQuoteProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPQuoteProvider(cfg *config.Config) *HTTPQuoteProvider {
	return &HTTPQuoteProvider{
		endpoint: cfg.Quotes.Endpoint,
		apiKey:   cfg.Quotes.APIKey,
		client:   &http.Client{Timeout: cfg.Quotes.Timeout},
	}
}

// quotePayload is the vendor wire format.
type quotePayload struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	ChangePct float64   `json:"change_pct"`
	AsOf      time.Time `json:"as_of"`
}

func (p *HTTPQuoteProvider) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote endpoint: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	if p.apiKey != "" {
		q.Set("apikey", p.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("quote vendor returned status %d for %s", resp.StatusCode, symbol)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote payload: %w", err)
	}
	if payload.Price <= 0 {
		return nil, fmt.Errorf("quote vendor returned non-positive price for %s", symbol)
	}

	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	return &models.Quote{
		Symbol:    symbol,
		Price:     payload.Price,
		Currency:  payload.Currency,
		ChangePct: payload.ChangePct,
		AsOf:      asOf,
	}, nil
}
