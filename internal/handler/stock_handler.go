package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finboard/internal/service"
	"finboard/internal/util"
)

// StockHandler handles quote reads and instrument search.
type StockHandler struct {
	stocks *service.StockService
	logger *zap.Logger
}

func NewStockHandler(stocks *service.StockService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		stocks: stocks,
		logger: logger,
	}
}

// GetQuote handles single quote reads
// @Summary Get a quote
// @Description Return the current quote for a symbol, served from cache when fresh
// @Tags stocks
// @Produce json
// @Param symbol path string true "Symbol"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /stocks/quote/{symbol} [get]
func (h *StockHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	symbol := chi.URLParam(r, "symbol")

	quote, err := h.stocks.GetQuote(ctx, symbol)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get quote")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(quote, "Quote retrieved successfully"))
	h.logger.Debug("Quote retrieved via HTTP",
		util.String("symbol", quote.Symbol),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetQuote"),
	)
}

// Search handles instrument catalog search
// @Summary Search instruments
// @Description Search the instrument catalog by symbol or name
// @Tags stocks
// @Produce json
// @Param q query string true "Search query"
// @Param limit query int false "Max results (default: 10, max: 50)"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /stocks/search [get]
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	q := r.URL.Query().Get("q")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = parsed
	}

	instruments, err := h.stocks.Search(ctx, q, limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to search instruments")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(instruments, "Instruments retrieved successfully"))
	h.logger.Debug("Instruments searched via HTTP",
		util.String("query", q),
		util.Int("results", len(instruments)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Search"),
	)
}
