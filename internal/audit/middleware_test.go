package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/auth"
	"finboard/internal/models"
)

func testPrincipal() *auth.Principal {
	return &auth.Principal{
		UserID:    "u-1",
		Email:     "morgan@example.com",
		FirstName: "Morgan",
		LastName:  "Reed",
		Role:      models.RoleUser,
	}
}

func okJSON(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func TestObserveRecordsSuccessfulAuthenticatedRequests(t *testing.T) {
	sink := &capturingSink{}
	rec := NewRecorder(sink)

	router := chi.NewRouter()
	router.With(rec.Observe(models.ActionWatchlistAdd, func(r *http.Request) map[string]string {
		return map[string]string{"symbol": chi.URLParam(r, "symbol")}
	})).Post("/watchlist/{symbol}", okJSON)

	req := httptest.NewRequest(http.MethodPost, "/watchlist/AAPL", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), testPrincipal()))
	req.Header.Set("User-Agent", "finboard-test/1.0")
	req.RemoteAddr = "192.0.2.7:52112"

	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)

	entry := sink.first()
	assert.Equal(t, "u-1", entry.UserID)
	assert.Equal(t, models.ActionWatchlistAdd, entry.Action)
	assert.Equal(t, map[string]string{"symbol": "AAPL"}, entry.Details)
	assert.Equal(t, "morgan@example.com", entry.Email)
	assert.Equal(t, "Morgan", entry.FirstName)
	assert.Equal(t, "Reed", entry.LastName)
	assert.Equal(t, "192.0.2.7", entry.IP)
	assert.Equal(t, "finboard-test/1.0", entry.UserAgent)
}

func TestObserveSkipsFailedResponses(t *testing.T) {
	sink := &capturingSink{}
	rec := NewRecorder(sink)

	handler := rec.Observe(models.ActionUpdateProfile, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))

	req := httptest.NewRequest(http.MethodPut, "/account/profile", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), testPrincipal()))

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Never(t, func() bool { return sink.count() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestObserveSkipsUnauthenticatedRequests(t *testing.T) {
	sink := &capturingSink{}
	rec := NewRecorder(sink)

	handler := rec.Observe(models.ActionUpdateProfile, nil)(http.HandlerFunc(okJSON))

	req := httptest.NewRequest(http.MethodPut, "/account/profile", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Never(t, func() bool { return sink.count() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

func TestObserveWritesWithFreshContext(t *testing.T) {
	sink := &capturingSink{}
	rec := NewRecorder(sink)

	handler := rec.Observe(models.ActionUpdateProfile, nil)(http.HandlerFunc(okJSON))

	// The request context is already canceled by the time the sink runs;
	// the write must not inherit that cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPut, "/account/profile", nil)
	req = req.WithContext(auth.WithPrincipal(ctx, testPrincipal()))
	cancel()

	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.NoError(t, sink.ctxErrs[0])
}
