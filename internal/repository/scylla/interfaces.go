package scylla

import (
	"context"
	"time"

	"finboard/internal/models"
)

// UserRepository defines the interface for user repository operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateNames(ctx context.Context, userID, firstName, lastName string) error
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, timestamp time.Time) error
	SetOnboarded(ctx context.Context, userID string, onboarded bool) error
	IsEmailTaken(ctx context.Context, email string) (bool, error)
}

// OTPRepository defines the interface for verification code storage. Upsert
// overwrites the single (user, purpose) row in one write, so the previous
// code stops existing the moment a new one lands.
type OTPRepository interface {
	Upsert(ctx context.Context, otp *models.OTPCode) error
	Get(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error)
	MarkUsed(ctx context.Context, userID string, purpose models.OTPPurpose, usedAt time.Time) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// ActivityRepository defines the interface for the append-only activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, entry *models.ActivityEntry) error
	ListByUser(ctx context.Context, userID string, limit int, pageState []byte) ([]*models.ActivityEntry, []byte, error)
}

// WatchlistRepository defines the interface for per-user watchlist rows.
type WatchlistRepository interface {
	Add(ctx context.Context, item *models.WatchlistItem) error
	Get(ctx context.Context, userID, symbol string) (*models.WatchlistItem, error)
	List(ctx context.Context, userID string) ([]*models.WatchlistItem, error)
	Delete(ctx context.Context, userID, symbol string) error
}

// NotificationRepository defines the interface for in-app notifications.
type NotificationRepository interface {
	Insert(ctx context.Context, notification *models.Notification) error
	Get(ctx context.Context, userID, notificationID string) (*models.Notification, error)
	List(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// OnboardingRepository defines the interface for questionnaire profiles.
type OnboardingRepository interface {
	Upsert(ctx context.Context, profile *models.OnboardingProfile) error
	Get(ctx context.Context, userID string) (*models.OnboardingProfile, error)
}
