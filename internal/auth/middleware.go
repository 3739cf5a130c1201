package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

// Gate authenticates requests and attaches a fresh principal. The stored
// user is re-read on every request, so bans, role changes, and profile
// edits take effect immediately instead of at token expiry.
type Gate struct {
	tokens *TokenManager
	users  scylla.UserRepository
}

func NewGate(tokens *TokenManager, users scylla.UserRepository) *Gate {
	return &Gate{
		tokens: tokens,
		users:  users,
	}
}

// RequireUser admits any authenticated principal.
func (g *Gate) RequireUser(next http.Handler) http.Handler {
	return g.require(next, models.RoleUser)
}

// RequireAdmin admits only administrators.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return g.require(next, models.RoleAdmin)
}

func (g *Gate) require(next http.Handler, minimum models.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.authenticate(r)
		if err != nil {
			writeGateError(w, err)
			return
		}

		if minimum == models.RoleAdmin && principal.Role != models.RoleAdmin {
			writeGateError(w, ErrInsufficientRole)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (g *Gate) authenticate(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrMissingCredential
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return nil, ErrMissingCredential
	}

	claims, err := g.tokens.Parse(parts[1])
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		// A token pointing at nothing is indistinguishable from a forged one.
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		util.Error("Failed to load principal",
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		return nil, err
	}

	principal, err := NewPrincipal(user)
	if err != nil {
		util.Warn("Stored role outside enum, rejecting credential",
			zap.String("user_id", user.UserID),
			zap.String("role", user.Role))
		return nil, ErrInvalidCredential
	}

	return principal, nil
}

// writeGateError renders the same envelope the handlers use. The gate
// cannot import the handler package, so the shape is duplicated here.
func writeGateError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal failure"

	switch {
	case errors.Is(err, ErrMissingCredential):
		status, message = http.StatusUnauthorized, ErrMissingCredential.Error()
	case errors.Is(err, ErrCredentialExpired):
		status, message = http.StatusUnauthorized, ErrCredentialExpired.Error()
	case errors.Is(err, ErrInvalidCredential):
		status, message = http.StatusUnauthorized, ErrInvalidCredential.Error()
	case errors.Is(err, ErrInsufficientRole):
		status, message = http.StatusForbidden, ErrInsufficientRole.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
