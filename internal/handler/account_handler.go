package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finboard/internal/auth"
	"finboard/internal/service"
	"finboard/internal/util"
)

// AccountHandler handles the authenticated account endpoints: profile,
// onboarding and the password change flow.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *zap.Logger
}

func NewAccountHandler(accounts *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// Me handles the profile read
// @Summary Get own profile
// @Description Return the authenticated user's profile
// @Tags account
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /account/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	user, err := h.accounts.GetProfile(ctx, principal.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get profile")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, "Profile retrieved successfully"))
}

// UpdateProfile handles profile updates
// @Summary Update own profile
// @Description Update display names on the authenticated account
// @Tags account
// @Accept json
// @Produce json
// @Param request body service.UpdateProfileRequest true "Profile update request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /account/profile [put]
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	var req service.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, principal.UserID, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update profile")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(user, "Profile updated successfully"))
	h.logger.Info("Profile updated via HTTP",
		util.String("user_id", principal.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "UpdateProfile"),
	)
}

// GetOnboarding handles the onboarding read
// @Summary Get onboarding answers
// @Description Return the authenticated user's onboarding questionnaire
// @Tags account
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /account/onboarding [get]
func (h *AccountHandler) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	profile, err := h.accounts.GetOnboarding(ctx, principal.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get onboarding profile")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(profile, "Onboarding profile retrieved successfully"))
}

// SaveOnboarding handles onboarding writes
// @Summary Save onboarding answers
// @Description Store the onboarding questionnaire answers
// @Tags account
// @Accept json
// @Produce json
// @Param request body service.SaveOnboardingRequest true "Onboarding answers"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /account/onboarding [put]
func (h *AccountHandler) SaveOnboarding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	var req service.SaveOnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	profile, err := h.accounts.SaveOnboarding(ctx, principal.UserID, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to save onboarding profile")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(profile, "Onboarding profile saved successfully"))
	h.logger.Info("Onboarding saved via HTTP",
		util.String("user_id", principal.UserID),
		util.Bool("completed", profile.Completed),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SaveOnboarding"),
	)
}

// RequestPasswordChange handles verification code issuance
// @Summary Request a password change
// @Description Issue a verification code to the account email
// @Tags account
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /account/password/request-change [post]
func (h *AccountHandler) RequestPasswordChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	masked, err := h.accounts.RequestPasswordChange(ctx, principal.UserID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to issue verification code")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"sent_to": masked,
	}, "Verification code sent"))
	h.logger.Info("Password change requested via HTTP",
		util.String("user_id", principal.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RequestPasswordChange"),
	)
}

// VerifyPasswordCode handles the read-only code check
// @Summary Verify a password change code
// @Description Check the verification code without consuming it
// @Tags account
// @Accept json
// @Produce json
// @Param request body object true "Code to verify"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /account/password/verify-code [post]
func (h *AccountHandler) VerifyPasswordCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("code is required"), "Code is required")
		return
	}

	if err := h.accounts.VerifyPasswordCode(ctx, principal.UserID, req.Code); err != nil {
		respondWithError(w, getStatusCode(err), err, "Code verification failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Code verified"))
}

// ChangePassword handles the guarded password mutation
// @Summary Change password
// @Description Consume the verification code and persist the new password
// @Tags account
// @Accept json
// @Produce json
// @Param request body object true "Code and new password"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 409 {object} Response
// @Router /account/password/change [post]
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	principal, ok := auth.PrincipalFrom(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, auth.ErrMissingCredential, "Authentication required")
		return
	}

	var req struct {
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Code == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("code is required"), "Code is required")
		return
	}

	if err := h.accounts.ChangePassword(ctx, principal.UserID, req.Code, req.NewPassword); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to change password")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password changed successfully"))
	h.logger.Info("Password changed via HTTP",
		util.String("user_id", principal.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ChangePassword"),
	)
}
