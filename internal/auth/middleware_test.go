package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/models"
	"finboard/internal/repository/scylla"
)

type fakeUserRepo struct {
	users map[string]*models.User
	fail  error
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, scylla.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) error { return nil }
func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, scylla.ErrNotFound
}
func (f *fakeUserRepo) UpdateNames(ctx context.Context, userID, firstName, lastName string) error {
	return nil
}
func (f *fakeUserRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return nil
}
func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, userID string, timestamp time.Time) error {
	return nil
}
func (f *fakeUserRepo) SetOnboarded(ctx context.Context, userID string, onboarded bool) error {
	return nil
}
func (f *fakeUserRepo) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	return false, nil
}

func newTestGate(users ...*models.User) (*Gate, *TokenManager, *fakeUserRepo) {
	repo := &fakeUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.UserID] = u
	}
	tm := NewTokenManager("test-secret", time.Hour, "finboard")
	return NewGate(tm, repo), tm, repo
}

func storedUser(id, role string) *models.User {
	return &models.User{
		UserID:    id,
		Email:     id + "@example.com",
		FirstName: "Stored",
		LastName:  "Name",
		Role:      role,
		Onboarded: true,
	}
}

func TestRequireUserRejections(t *testing.T) {
	user := storedUser("u-1", "user")
	gate, tm, _ := newTestGate(user)

	valid, _, err := tm.Issue(user)
	require.NoError(t, err)

	expiredTM := NewTokenManager("test-secret", -time.Minute, "finboard")
	expired, _, err := expiredTM.Issue(user)
	require.NoError(t, err)

	orphan, _, err := tm.Issue(storedUser("ghost", "user"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"no header", "", http.StatusUnauthorized, "missing credentials"},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "missing credentials"},
		{"bearer without token", "Bearer ", http.StatusUnauthorized, "missing credentials"},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized, "invalid credentials"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, "credentials expired"},
		{"token for deleted user", "Bearer " + orphan, http.StatusUnauthorized, "invalid credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			gate.RequireUser(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.False(t, called, "handler must not run on rejection")
		})
	}
}

func TestRequireUserAttachesFreshPrincipal(t *testing.T) {
	user := storedUser("u-1", "user")
	gate, tm, repo := newTestGate(user)

	raw, _, err := tm.Issue(user)
	require.NoError(t, err)

	var captured *Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = PrincipalFrom(r.Context())
	})

	do := func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
		req.Header.Set("Authorization", "Bearer "+raw)
		rec := httptest.NewRecorder()
		gate.RequireUser(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	do()
	require.NotNil(t, captured)
	assert.Equal(t, "Stored", captured.FirstName)
	assert.Equal(t, models.RoleUser, captured.Role)

	// The principal reflects the store as it is now, not as it was when
	// the token was minted.
	repo.users["u-1"].FirstName = "Renamed"
	do()
	assert.Equal(t, "Renamed", captured.FirstName)
}

func TestRequireAdmin(t *testing.T) {
	regular := storedUser("u-1", "user")
	admin := storedUser("a-1", "admin")
	gate, tm, _ := newTestGate(regular, admin)

	userToken, _, err := tm.Issue(regular)
	require.NoError(t, err)
	adminToken, _, err := tm.Issue(admin)
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/u-1", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	gate.RequireAdmin(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient role")
	assert.False(t, called)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/u-1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	gate.RequireAdmin(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestRequireUserRejectsRoleOutsideEnum(t *testing.T) {
	odd := storedUser("u-9", "superuser")
	gate, tm, _ := newTestGate(odd)

	raw, _, err := tm.Issue(odd)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	gate.RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestStoreFailureIsNotCollapsed(t *testing.T) {
	user := storedUser("u-1", "user")
	gate, tm, repo := newTestGate(user)
	repo.fail = fmt.Errorf("connection refused")

	raw, _, err := tm.Issue(user)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	gate.RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
