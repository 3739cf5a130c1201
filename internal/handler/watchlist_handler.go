package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finboard/internal/auth"
	"finboard/internal/service"
	"finboard/internal/util"
)

// WatchlistHandler handles the authenticated watchlist endpoints.
type WatchlistHandler struct {
	watchlists *service.WatchlistService
	logger     *zap.Logger
}

func NewWatchlistHandler(watchlists *service.WatchlistService, logger *zap.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		watchlists: watchlists,
		logger:     logger,
	}
}

// List handles the watchlist read
// @Summary List watchlist
// @Description Return the user's watchlist decorated with current quotes
// @Tags watchlist
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /watchlist [get]
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	entries, err := h.watchlists.List(ctx, principal.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list watchlist")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(entries, "Watchlist retrieved successfully"))
	h.logger.Debug("Watchlist listed via HTTP",
		util.String("user_id", principal.UserID),
		util.Int("items", len(entries)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "List"),
	)
}

// Add handles watchlist additions
// @Summary Add watchlist item
// @Description Put a symbol on the user's watchlist
// @Tags watchlist
// @Accept json
// @Produce json
// @Param request body object true "Symbol and optional note"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /watchlist [post]
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	var req struct {
		Symbol string `json:"symbol"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	item, err := h.watchlists.Add(ctx, principal.UserID, req.Symbol, req.Note)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to add watchlist item")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(item, "Watchlist item added successfully"))
	h.logger.Info("Watchlist item added via HTTP",
		util.String("user_id", principal.UserID),
		util.String("symbol", item.Symbol),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Add"),
	)
}

// Remove handles watchlist deletions
// @Summary Remove watchlist item
// @Description Delete a symbol from the user's watchlist
// @Tags watchlist
// @Produce json
// @Param symbol path string true "Symbol"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /watchlist/{symbol} [delete]
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	symbol := chi.URLParam(r, "symbol")

	if err := h.watchlists.Remove(ctx, principal.UserID, symbol); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to remove watchlist item")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Watchlist item removed successfully"))
	h.logger.Info("Watchlist item removed via HTTP",
		util.String("user_id", principal.UserID),
		util.String("symbol", symbol),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Remove"),
	)
}
