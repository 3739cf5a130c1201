package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finboard/internal/audit"
	"finboard/internal/auth"
	"finboard/internal/cache"
	"finboard/internal/config"
	"finboard/internal/hashing"
	"finboard/internal/models"
	"finboard/internal/otp"
	"finboard/internal/repository/scylla"
	"finboard/internal/service"
	"finboard/internal/stocks"
)

// In-memory repository fakes. They honor the same contracts as the Scylla
// implementations: clones on read, scylla.ErrNotFound on misses, UserID
// assignment on create.

type memUsers struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*models.User{}, byEmail: map[string]*models.User{}}
}

func (m *memUsers) seed(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *u
	m.byID[u.UserID] = &clone
	m.byEmail[u.Email] = &clone
}

func (m *memUsers) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}
	user.CreatedAt = time.Now().UTC()
	clone := *user
	m.byID[user.UserID] = &clone
	m.byEmail[user.Email] = &clone
	return nil
}

func (m *memUsers) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, scylla.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("email: %w", scylla.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) UpdateNames(ctx context.Context, userID, firstName, lastName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	u.FirstName, u.LastName = firstName, lastName
	return nil
}

func (m *memUsers) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return scylla.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, userID string, timestamp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		ts := timestamp
		u.LastLoginAt = &ts
	}
	return nil
}

func (m *memUsers) SetOnboarded(ctx context.Context, userID string, onboarded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[userID]; ok {
		u.Onboarded = onboarded
	}
	return nil
}

func (m *memUsers) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byEmail[email]
	return ok, nil
}

type memOTPs struct {
	mu    sync.Mutex
	codes map[string]*models.OTPCode
}

func newMemOTPs() *memOTPs { return &memOTPs{codes: map[string]*models.OTPCode{}} }

func otpKey(userID string, purpose models.OTPPurpose) string {
	return userID + "|" + string(purpose)
}

func (m *memOTPs) Upsert(ctx context.Context, code *models.OTPCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *code
	clone.Used = false
	clone.UsedAt = nil
	clone.CreatedAt = time.Now().UTC()
	m.codes[otpKey(code.UserID, code.Purpose)] = &clone
	return nil
}

func (m *memOTPs) Get(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[otpKey(userID, purpose)]
	if !ok {
		return nil, fmt.Errorf("otp: %w", scylla.ErrNotFound)
	}
	clone := *c
	return &clone, nil
}

func (m *memOTPs) MarkUsed(ctx context.Context, userID string, purpose models.OTPPurpose, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[otpKey(userID, purpose)]
	if !ok {
		return scylla.ErrNotFound
	}
	c.Used = true
	ts := usedAt
	c.UsedAt = &ts
	return nil
}

func (m *memOTPs) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for k, c := range m.codes {
		if c.ExpiresAt.Before(before) {
			delete(m.codes, k)
			deleted++
		}
	}
	return deleted, nil
}

type memNotifications struct {
	mu    sync.Mutex
	items map[string][]*models.Notification
}

func newMemNotifications() *memNotifications {
	return &memNotifications{items: map[string][]*models.Notification{}}
}

func (m *memNotifications) Insert(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	clone := *n
	// Newest first, matching the DESC clustering order of the real table.
	m.items[n.UserID] = append([]*models.Notification{&clone}, m.items[n.UserID]...)
	return nil
}

func (m *memNotifications) Get(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items[userID] {
		if n.NotificationID == notificationID {
			clone := *n
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("notification: %w", scylla.ErrNotFound)
}

func (m *memNotifications) List(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]*models.Notification, 0, len(list))
	for _, n := range list {
		clone := *n
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memNotifications) MarkRead(ctx context.Context, userID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items[userID] {
		if n.NotificationID == notificationID {
			n.Read = true
			return nil
		}
	}
	return scylla.ErrNotFound
}

type memWatchlist struct {
	mu    sync.Mutex
	items map[string]map[string]*models.WatchlistItem
}

func newMemWatchlist() *memWatchlist {
	return &memWatchlist{items: map[string]map[string]*models.WatchlistItem{}}
}

func (m *memWatchlist) Add(ctx context.Context, item *models.WatchlistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items[item.UserID] == nil {
		m.items[item.UserID] = map[string]*models.WatchlistItem{}
	}
	clone := *item
	m.items[item.UserID][item.Symbol] = &clone
	return nil
}

func (m *memWatchlist) Get(ctx context.Context, userID, symbol string) (*models.WatchlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[userID][symbol]
	if !ok {
		return nil, fmt.Errorf("watchlist item: %w", scylla.ErrNotFound)
	}
	clone := *item
	return &clone, nil
}

func (m *memWatchlist) List(ctx context.Context, userID string) ([]*models.WatchlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbols := make([]string, 0, len(m.items[userID]))
	for s := range m.items[userID] {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	out := make([]*models.WatchlistItem, 0, len(symbols))
	for _, s := range symbols {
		clone := *m.items[userID][s]
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memWatchlist) Delete(ctx context.Context, userID, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items[userID], symbol)
	return nil
}

type memOnboarding struct {
	mu       sync.Mutex
	profiles map[string]*models.OnboardingProfile
}

func newMemOnboarding() *memOnboarding {
	return &memOnboarding{profiles: map[string]*models.OnboardingProfile{}}
}

func (m *memOnboarding) Upsert(ctx context.Context, p *models.OnboardingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	clone := *p
	m.profiles[p.UserID] = &clone
	return nil
}

func (m *memOnboarding) Get(ctx context.Context, userID string) (*models.OnboardingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("onboarding: %w", scylla.ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

type memActivity struct {
	mu      sync.Mutex
	entries []*models.ActivityEntry
}

func (m *memActivity) Insert(ctx context.Context, entry *models.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *memActivity) ListByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*models.ActivityEntry, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ActivityEntry, 0)
	for _, e := range m.entries {
		if e.UserID == userID {
			clone := *e
			out = append(out, &clone)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil, nil
}

// captureNotifier records issued codes so tests can replay the email the
// user would have received.
type captureNotifier struct {
	mu   sync.Mutex
	last otp.Delivery
}

func (c *captureNotifier) Send(ctx context.Context, d otp.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = d
	return nil
}

func (c *captureNotifier) lastCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.Code
}

// captureSink collects activity entries the recorder fans out.
type captureSink struct {
	mu      sync.Mutex
	entries []*models.ActivityEntry
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Write(ctx context.Context, entry *models.ActivityEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *entry
	c.entries = append(c.entries, &clone)
	return nil
}

func (c *captureSink) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

// stubProvider serves fixed quotes for a known symbol set.
type stubProvider struct {
	mu     sync.Mutex
	quotes map[string]float64
	calls  int
}

func (p *stubProvider) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	price, ok := p.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, stocks.ErrUnknownSymbol)
	}
	return &models.Quote{
		Symbol:   symbol,
		Price:    price,
		Currency: "USD",
		AsOf:     time.Now().UTC(),
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "development",
		Auth: config.AuthConfig{
			TokenTTL: time.Hour,
			Issuer:   "finboard",
		},
		OTP: config.OTPConfig{TTL: 5 * time.Minute},
		Cache: config.CacheConfig{
			DefaultTTL:       time.Minute,
			RetryAttempts:    3,
			RetryBackoffBase: time.Millisecond,
			RetryBackoffMax:  5 * time.Millisecond,
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "test-pepper",
		},
		Elasticsearch: config.ElasticsearchConfig{InstrumentIndex: "instruments"},
		Quotes:        config.QuotesConfig{Timeout: time.Second},
	}
}

type testEnv struct {
	router   http.Handler
	users    *memUsers
	otps     *memOTPs
	notes    *memNotifications
	activity *memActivity
	notifier *captureNotifier
	sink     *captureSink
	recorder *audit.Recorder
	tokens   *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	logger := zap.NewNop()

	users := newMemUsers()
	otps := newMemOTPs()
	notes := newMemNotifications()
	watchlist := newMemWatchlist()
	onboarding := newMemOnboarding()
	activity := &memActivity{}
	notifier := &captureNotifier{}
	sink := &captureSink{}
	provider := &stubProvider{quotes: map[string]float64{"AAPL": 189.30, "MSFT": 402.10}}

	hasher := hashing.NewHasher(cfg)
	noCache := cache.New(nil, cfg)
	tokens := auth.NewTokenManager("test-secret", cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	gate := auth.NewGate(tokens, users)
	recorder := audit.NewRecorder(audit.NewStoreSink(activity), sink)
	otpService := otp.NewService(otps, notifier, cfg)

	accounts := service.NewAccountService(users, onboarding, notes, hasher, otpService, logger)
	stockService := service.NewStockService(provider, noCache, nil, cfg, logger)
	watchlists := service.NewWatchlistService(watchlist, stockService, logger)
	notifications := service.NewNotificationService(notes, logger)
	activityService := service.NewActivityService(activity, nil, logger)

	router := NewRouter(Deps{
		Config:        cfg,
		Gate:          gate,
		Recorder:      recorder,
		TokenManager:  tokens,
		Accounts:      accounts,
		Stocks:        stockService,
		Watchlists:    watchlists,
		Notifications: notifications,
		Activity:      activityService,
		Cache:         noCache,
	}, logger)

	return &testEnv{
		router:   router,
		users:    users,
		otps:     otps,
		notes:    notes,
		activity: activity,
		notifier: notifier,
		sink:     sink,
		recorder: recorder,
		tokens:   tokens,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env),
			"response is not a JSON envelope: %s", rec.Body.String())
	}
	return rec, env
}

func (e *testEnv) register(t *testing.T, email, password string) *models.User {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/auth/register", "", service.RegisterRequest{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user models.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	return &user
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/v1/auth/login", "", service.LoginRequest{
		Email:    email,
		Password: password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func (e *testEnv) seedAdmin(t *testing.T) string {
	t.Helper()
	admin := &models.User{
		UserID:    "admin-1",
		Email:     "admin@finboard.dev",
		FirstName: "Ops",
		LastName:  "Admin",
		Role:      string(models.RoleAdmin),
		Onboarded: true,
	}
	e.users.seed(admin)
	token, _, err := e.tokens.Issue(admin)
	require.NoError(t, err)
	return token
}

func TestRegisterLoginMe(t *testing.T) {
	env := newTestEnv(t)

	user := env.register(t, "ada@example.com", "correct-horse-battery")
	assert.NotEmpty(t, user.UserID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, string(models.RoleUser), user.Role)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPost, "/api/v1/auth/register", "", service.RegisterRequest{
			Email:     "ADA@example.com",
			Password:  "another-password-1",
			FirstName: "Ada",
			LastName:  "Lovelace",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, e.Error, "email already registered")
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPost, "/api/v1/auth/login", "", service.LoginRequest{
			Email:    "ada@example.com",
			Password: "wrong-password-entirely",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, e.Error, "invalid email or password")
	})

	token := env.login(t, "ada@example.com", "correct-horse-battery")

	t.Run("me returns the stored profile", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/account/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var got models.User
		require.NoError(t, json.Unmarshal(e.Data, &got))
		assert.Equal(t, user.UserID, got.UserID)
		assert.Equal(t, "Ada", got.FirstName)
	})

	t.Run("me without a token is unauthorized", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/account/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("registration leaves a welcome notification", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/notifications/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var notes []*models.Notification
		require.NoError(t, json.Unmarshal(e.Data, &notes))
		require.Len(t, notes, 1)
		assert.Equal(t, models.NotificationKindSystem, notes[0].Kind)
	})
}

func TestPasswordChangeFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com", "original-password-1")
	token := env.login(t, "ada@example.com", "original-password-1")

	rec, e := env.do(t, http.MethodPost, "/api/v1/account/password/request-change", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sent struct {
		SentTo string `json:"sent_to"`
	}
	require.NoError(t, json.Unmarshal(e.Data, &sent))
	assert.NotContains(t, sent.SentTo, "ada@example.com", "destination must be masked")

	code := env.notifier.lastCode()
	require.Len(t, code, 6)

	t.Run("wrong code does not verify", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPost, "/api/v1/account/password/verify-code", token,
			map[string]string{"code": "000000"})
		if code == "000000" {
			t.Skip("stub drew the all-zero code")
		}
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, e.Error, "not found or expired")
	})

	t.Run("verify is repeatable", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec, _ := env.do(t, http.MethodPost, "/api/v1/account/password/verify-code", token,
				map[string]string{"code": code})
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	rec, _ = env.do(t, http.MethodPost, "/api/v1/account/password/change", token,
		map[string]string{"code": code, "new_password": "replacement-password-2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("old password stops working", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", "", service.LoginRequest{
			Email:    "ada@example.com",
			Password: "original-password-1",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("new password works", func(t *testing.T) {
		env.login(t, "ada@example.com", "replacement-password-2")
	})

	t.Run("replaying the spent code conflicts", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPost, "/api/v1/account/password/change", token,
			map[string]string{"code": code, "new_password": "third-password-33"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, e.Error, "already used")
	})

	t.Run("password change leaves a security notification", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/notifications/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var notes []*models.Notification
		require.NoError(t, json.Unmarshal(e.Data, &notes))
		require.NotEmpty(t, notes)
		assert.Equal(t, models.NotificationKindSecurity, notes[0].Kind)
	})
}

func TestWatchlistFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	token := env.login(t, "ada@example.com", "correct-horse-battery")

	rec, e := env.do(t, http.MethodPost, "/api/v1/watchlist/", token,
		map[string]string{"symbol": "aapl", "note": "long term"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added models.WatchlistItem
	require.NoError(t, json.Unmarshal(e.Data, &added))
	assert.Equal(t, "AAPL", added.Symbol, "symbols are stored uppercased")

	t.Run("bad symbol rejected", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/watchlist/", token,
			map[string]string{"symbol": "not a symbol!"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list carries quotes", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/watchlist/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []struct {
			Item  *models.WatchlistItem `json:"item"`
			Quote *models.Quote         `json:"quote"`
		}
		require.NoError(t, json.Unmarshal(e.Data, &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "AAPL", entries[0].Item.Symbol)
		require.NotNil(t, entries[0].Quote)
		assert.InDelta(t, 189.30, entries[0].Quote.Price, 0.001)
	})

	t.Run("remove then remove again", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodDelete, "/api/v1/watchlist/AAPL", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec, e := env.do(t, http.MethodDelete, "/api/v1/watchlist/AAPL", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, e.Error, "watchlist item not found")
	})
}

func TestStockEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada@example.com", "correct-horse-battery")
	token := env.login(t, "ada@example.com", "correct-horse-battery")

	t.Run("quote normalizes the symbol", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/stocks/quote/msft", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var quote models.Quote
		require.NoError(t, json.Unmarshal(e.Data, &quote))
		assert.Equal(t, "MSFT", quote.Symbol)
	})

	t.Run("unknown symbol is 404", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/stocks/quote/ZZZZ", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("search degrades without a search backend", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/stocks/search?q=apple", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var instruments []*models.Instrument
		require.NoError(t, json.Unmarshal(e.Data, &instruments))
		assert.Empty(t, instruments)
	})

	t.Run("search requires a query", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/stocks/search", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNotificationMarkRead(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "ada@example.com", "correct-horse-battery")
	token := env.login(t, "ada@example.com", "correct-horse-battery")

	rec, e := env.do(t, http.MethodGet, "/api/v1/notifications/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []*models.Notification
	require.NoError(t, json.Unmarshal(e.Data, &notes))
	require.Len(t, notes, 1)
	require.False(t, notes[0].Read)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/notifications/"+notes[0].NotificationID+"/read", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := env.notes.Get(context.Background(), user.UserID, notes[0].NotificationID)
	require.NoError(t, err)
	assert.True(t, stored.Read)

	t.Run("unknown notification is 404", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/notifications/no-such-id/read", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "ada@example.com", "correct-horse-battery")
	token := env.login(t, "ada@example.com", "correct-horse-battery")

	t.Run("empty profile before answers", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/account/onboarding", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var profile models.OnboardingProfile
		require.NoError(t, json.Unmarshal(e.Data, &profile))
		assert.False(t, profile.Completed)
	})

	t.Run("unknown enum is rejected", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPut, "/api/v1/account/onboarding", token,
			service.SaveOnboardingRequest{RiskTolerance: "yolo"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partial answers do not complete", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPut, "/api/v1/account/onboarding", token,
			service.SaveOnboardingRequest{RiskTolerance: "balanced", Goal: "growth"})
		require.Equal(t, http.StatusOK, rec.Code)
		var profile models.OnboardingProfile
		require.NoError(t, json.Unmarshal(e.Data, &profile))
		assert.False(t, profile.Completed)
	})

	t.Run("full answers complete and flag the user", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPut, "/api/v1/account/onboarding", token,
			service.SaveOnboardingRequest{
				RiskTolerance: "balanced",
				Goal:          "growth",
				HorizonYears:  10,
				IncomeBand:    "mid",
			})
		require.Equal(t, http.StatusOK, rec.Code)
		var profile models.OnboardingProfile
		require.NoError(t, json.Unmarshal(e.Data, &profile))
		assert.True(t, profile.Completed)

		stored, err := env.users.GetUserByID(context.Background(), user.UserID)
		require.NoError(t, err)
		assert.True(t, stored.Onboarded)
	})
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "ada@example.com", "correct-horse-battery")
	userToken := env.login(t, "ada@example.com", "correct-horse-battery")
	adminToken := env.seedAdmin(t)

	t.Run("regular user is forbidden", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/admin/users/"+user.UserID, userToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin reads a user", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/admin/users/"+user.UserID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got models.User
		require.NoError(t, json.Unmarshal(e.Data, &got))
		assert.Equal(t, user.Email, got.Email)
	})

	t.Run("admin reads user activity", func(t *testing.T) {
		require.NoError(t, env.activity.Insert(context.Background(), &models.ActivityEntry{
			UserID: user.UserID,
			Action: models.ActionUpdateProfile,
		}))
		rec, e := env.do(t, http.MethodGet, "/api/v1/admin/users/"+user.UserID+"/activity", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var entries []*models.ActivityEntry
		require.NoError(t, json.Unmarshal(e.Data, &entries))
		assert.NotEmpty(t, entries)
	})

	t.Run("stats unavailable without clickhouse", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/api/v1/admin/activity/stats", adminToken, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("cache invalidate without backend deletes nothing", func(t *testing.T) {
		rec, e := env.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", adminToken,
			map[string]string{"pattern": "quote:*"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var data struct {
			Deleted int `json:"deleted"`
		}
		require.NoError(t, json.Unmarshal(e.Data, &data))
		assert.Zero(t, data.Deleted)
	})

	t.Run("instrument upsert unavailable without search backend", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPut, "/api/v1/admin/instruments", adminToken,
			models.Instrument{Symbol: "AAPL", Name: "Apple Inc."})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("empty invalidate pattern rejected", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", adminToken,
			map[string]string{"pattern": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "ada@example.com", "correct-horse-battery")
	token := env.login(t, "ada@example.com", "correct-horse-battery")

	first := "Grace"
	rec, _ := env.do(t, http.MethodPut, "/api/v1/account/profile", token,
		service.UpdateProfileRequest{FirstName: &first})
	require.Equal(t, http.StatusOK, rec.Code)

	// Reads never leave a trace.
	rec, _ = env.do(t, http.MethodGet, "/api/v1/account/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Failed mutations never leave a trace.
	rec, _ = env.do(t, http.MethodPut, "/api/v1/account/onboarding", token,
		service.SaveOnboardingRequest{RiskTolerance: "yolo"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Record is asynchronous; Close drains the in-flight writes.
	env.recorder.Close()

	actions := env.sink.actions()
	assert.Contains(t, actions, models.ActionRegister)
	assert.Contains(t, actions, models.ActionUpdateProfile)
	assert.NotContains(t, actions, models.ActionSaveOnboarding)

	for _, e := range env.sink.entries {
		if e.Action == models.ActionUpdateProfile {
			assert.Equal(t, user.UserID, e.UserID)
			assert.Equal(t, "Ada", e.FirstName,
				"entry snapshots the principal before the rename")
		}
	}

	// The store sink receives the same entries.
	entries, _, err := env.activity.ListByUser(context.Background(), user.UserID, 10, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRouterSurface(t *testing.T) {
	env := newTestEnv(t)

	t.Run("health", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "finboard")
	})

	t.Run("unknown route", func(t *testing.T) {
		rec, e := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, e.Error, "endpoint not found")
	})

	t.Run("wrong method", func(t *testing.T) {
		rec, e := env.do(t, http.MethodDelete, "/health", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Contains(t, e.Error, "method not allowed")
	})
}
