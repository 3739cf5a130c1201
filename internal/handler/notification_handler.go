package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finboard/internal/auth"
	"finboard/internal/service"
	"finboard/internal/util"
)

// NotificationHandler handles in-app notification reads and acknowledgements.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// List handles notification reads
// @Summary List notifications
// @Description Return the user's notifications, newest first
// @Tags notifications
// @Produce json
// @Param limit query int false "Max results (default: 50, max: 200)"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = parsed
	}

	notifications, err := h.notifications.List(ctx, principal.UserID, limit)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list notifications")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(notifications, "Notifications retrieved successfully"))
}

// MarkRead handles notification acknowledgement
// @Summary Mark notification read
// @Description Acknowledge a notification
// @Tags notifications
// @Produce json
// @Param notificationID path string true "Notification ID"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /notifications/{notificationID}/read [post]
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	notificationID := chi.URLParam(r, "notificationID")

	if err := h.notifications.MarkRead(ctx, principal.UserID, notificationID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to mark notification read")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Notification marked read"))
	h.logger.Debug("Notification marked read via HTTP",
		util.String("user_id", principal.UserID),
		util.String("notification_id", notificationID),
		util.String("method", "MarkRead"),
	)
}
