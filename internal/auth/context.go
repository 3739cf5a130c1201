package auth

import (
	"context"
	"time"

	"finboard/internal/models"
)

type contextKey string

const principalKey contextKey = "finboard.principal"

// Principal is the sanitized identity handlers see. It carries no password
// hash and no email lookup hash.
type Principal struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Role      models.Role
	Onboarded bool
	CreatedAt time.Time
}

// NewPrincipal snapshots the safe subset of a stored user. A row whose role
// fell outside the enum cannot become a principal.
func NewPrincipal(user *models.User) (*Principal, error) {
	role, err := models.ParseRole(user.Role)
	if err != nil {
		return nil, err
	}
	return &Principal{
		UserID:    user.UserID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      role,
		Onboarded: user.Onboarded,
		CreatedAt: user.CreatedAt,
	}, nil
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated principal, if the request passed
// through a gate.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
