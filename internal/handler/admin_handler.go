package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finboard/internal/cache"
	"finboard/internal/models"
	"finboard/internal/service"
	"finboard/internal/util"
)

// AdminHandler handles the admin-only endpoints: principal inspection,
// activity views, cache invalidation and the instrument catalog.
type AdminHandler struct {
	accounts *service.AccountService
	activity *service.ActivityService
	stocks   *service.StockService
	cache    *cache.Cache
	logger   *zap.Logger
}

func NewAdminHandler(
	accounts *service.AccountService,
	activity *service.ActivityService,
	stocks *service.StockService,
	cacheHandle *cache.Cache,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		accounts: accounts,
		activity: activity,
		stocks:   stocks,
		cache:    cacheHandle,
		logger:   logger,
	}
}

// GetUser handles admin principal inspection
// @Summary Get a user
// @Description Return a user's profile by ID
// @Tags admin
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /admin/users/{userID} [get]
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := chi.URLParam(r, "userID")

	user, err := h.accounts.GetProfile(ctx, userID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get user")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, "User retrieved successfully"))
}

// GetUserActivity handles the per-user activity log view
// @Summary Get a user's activity
// @Description Page through a user's activity log, newest first
// @Tags admin
// @Produce json
// @Param userID path string true "User ID"
// @Param limit query int false "Page size (default: 50, max: 200)"
// @Param page_token query string false "Page token for pagination"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /admin/users/{userID}/activity [get]
func (h *AdminHandler) GetUserActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	pageToken := r.URL.Query().Get("page_token")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = parsed
	}

	entries, nextPageToken, err := h.activity.ListByUser(ctx, userID, limit, pageToken)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list activity")
		return
	}

	response := successResponse(entries, "Activity retrieved successfully")
	if nextPageToken != "" {
		response.Meta = &Meta{
			PageToken: nextPageToken,
			Total:     len(entries),
		}
	}

	respondWithJSON(w, http.StatusOK, response)
	h.logger.Debug("Activity retrieved via HTTP",
		util.String("user_id", userID),
		util.Int("entries", len(entries)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetUserActivity"),
	)
}

// GetActivityStats handles the aggregate activity report
// @Summary Get activity stats
// @Description Aggregate activity counts per action per day
// @Tags admin
// @Produce json
// @Param days query int false "Trailing window in days (default: 7, max: 90)"
// @Success 200 {object} Response
// @Failure 403 {object} Response
// @Failure 503 {object} Response
// @Router /admin/activity/stats [get]
func (h *AdminHandler) GetActivityStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	days := 0
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid days")
			return
		}
		days = parsed
	}

	stats, err := h.activity.Stats(ctx, days)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get activity stats")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(stats, "Activity stats retrieved successfully"))
	h.logger.Debug("Activity stats retrieved via HTTP",
		util.Int("rows", len(stats)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "GetActivityStats"),
	)
}

// InvalidateCache handles pattern-based cache invalidation
// @Summary Invalidate cache keys
// @Description Delete every cache key matching the pattern
// @Tags admin
// @Accept json
// @Produce json
// @Param request body object true "Glob pattern, e.g. quote:*"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /admin/cache/invalidate [post]
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Pattern string `json:"pattern"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Pattern == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("pattern is required"), "Pattern is required")
		return
	}

	deleted := h.cache.DeleteByPattern(ctx, req.Pattern)

	respondWithJSON(w, http.StatusOK, successResponse(map[string]int{
		"deleted": deleted,
	}, "Cache invalidated successfully"))
	h.logger.Info("Cache invalidated via HTTP",
		util.String("pattern", req.Pattern),
		util.Int("deleted", deleted),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "InvalidateCache"),
	)
}

// UpsertInstrument handles instrument catalog writes
// @Summary Upsert an instrument
// @Description Write the searchable catalog document for a symbol
// @Tags admin
// @Accept json
// @Produce json
// @Param request body models.Instrument true "Instrument document"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 503 {object} Response
// @Router /admin/instruments [put]
func (h *AdminHandler) UpsertInstrument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var inst models.Instrument
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.stocks.UpsertInstrument(ctx, &inst); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to upsert instrument")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(inst, "Instrument upserted successfully"))
	h.logger.Info("Instrument upserted via HTTP",
		util.String("symbol", inst.Symbol),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UpsertInstrument"),
	)
}
