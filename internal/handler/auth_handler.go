package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finboard/internal/audit"
	"finboard/internal/auth"
	"finboard/internal/models"
	"finboard/internal/service"
	"finboard/internal/util"
)

// AuthHandler handles the public registration and login endpoints.
type AuthHandler struct {
	accounts *service.AccountService
	tokens   *auth.TokenManager
	recorder *audit.Recorder
	logger   *zap.Logger
}

func NewAuthHandler(accounts *service.AccountService, tokens *auth.TokenManager, recorder *audit.Recorder, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		recorder: recorder,
		logger:   logger,
	}
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register handles account creation
// @Summary Register a new account
// @Description Create an account with email, password and display names
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "Registration request"
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 500 {object} Response
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.accounts.Register(ctx, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to register account")
		return
	}

	// Registration happens before a principal exists, so the route
	// middleware cannot see it; record the entry directly.
	h.recorder.Record(&models.ActivityEntry{
		UserID:    user.UserID,
		Action:    models.ActionRegister,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IP:        remoteIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: time.Now().UTC(),
	})

	respondWithJSON(w, http.StatusCreated, successResponse(user, "Account registered successfully"))
	h.logger.Info("Account registered via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// Login handles credential verification and token issuance
// @Summary Log in
// @Description Verify credentials and return a signed bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.LoginRequest true "Login request"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Failure 500 {object} Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	user, err := h.accounts.Login(ctx, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to log in")
		return
	}

	token, expiresAt, err := h.tokens.Issue(user)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, "Logged in successfully"))
	h.logger.Info("User logged in via HTTP",
		util.String("user_id", user.UserID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Login"),
	)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
