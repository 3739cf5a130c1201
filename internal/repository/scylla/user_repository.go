package scylla

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"finboard/internal/bucketing"
	"finboard/internal/models"
	"finboard/internal/util"
)

type userRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewUserRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) UserRepository {
	return &userRepository{
		client:  client,
		buckets: buckets,
	}
}

// hashEmail normalizes and hashes an address for the email_to_user lookup
// table. The plain address still lives on the users row.
func hashEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.EmailHash = hashEmail(user.Email)
	user.UserBucket = r.buckets.GetUserBucket(user.UserID)

	// Logged batch keeps users and the email lookup table consistent
	batch := r.client.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(r.client.Prepared.CreateUser.Statement(),
		user.UserBucket, user.UserID, user.Email, user.EmailHash, user.PasswordHash,
		user.FirstName, user.LastName, user.Role, user.Onboarded,
		user.CreatedAt, user.UpdatedAt, user.LastLoginAt)

	batch.Query(r.client.Prepared.CreateEmailToUser.Statement(),
		user.EmailHash, user.UserBucket, user.UserID, user.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create user",
			zap.String("user_id", user.UserID),
			zap.String("email", util.MaskEmail(user.Email)),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created successfully",
		zap.String("user_id", user.UserID),
		zap.String("email", util.MaskEmail(user.Email)),
		zap.String("role", user.Role))

	return nil
}

func (r *userRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	bucket := r.buckets.GetUserBucket(userID)
	return r.fetchUser(ctx, bucket, userID)
}

func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var bucket int
	var userID string

	query := r.client.Prepared.GetUserByEmailHash.Bind(hashEmail(email)).WithContext(ctx)

	err := r.client.ScanWithRetry(query, &bucket, &userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("user with email %s: %w", util.MaskEmail(email), ErrNotFound)
		}
		util.Error("Failed to look up user by email",
			zap.String("email", util.MaskEmail(email)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return r.fetchUser(ctx, bucket, userID)
}

func (r *userRepository) fetchUser(ctx context.Context, bucket int, userID string) (*models.User, error) {
	user := &models.User{}

	query := r.client.Prepared.GetUserByID.Bind(bucket, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.UserID, &user.Email, &user.EmailHash, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Role, &user.Onboarded,
		&user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		util.Error("Failed to get user by ID",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdateNames(ctx context.Context, userID, firstName, lastName string) error {
	now := time.Now().UTC()
	bucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.UpdateUserNames.Bind(
		firstName, lastName, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user names",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update user names: %w", err)
	}

	util.Info("User names updated", zap.String("user_id", userID))
	return nil
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	now := time.Now().UTC()
	bucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.UpdateUserPasswordHash.Bind(
		passwordHash, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user password hash",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update user password hash: %w", err)
	}

	util.Info("User password hash updated", zap.String("user_id", userID))
	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string, timestamp time.Time) error {
	bucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.UpdateUserLastLogin.Bind(
		timestamp, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user last login",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to update user last login: %w", err)
	}

	return nil
}

func (r *userRepository) SetOnboarded(ctx context.Context, userID string, onboarded bool) error {
	now := time.Now().UTC()
	bucket := r.buckets.GetUserBucket(userID)

	query := r.client.Prepared.UpdateUserOnboarded.Bind(
		onboarded, now, bucket, userID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user onboarded flag",
			zap.String("user_id", userID),
			zap.Bool("onboarded", onboarded),
			zap.Error(err))
		return fmt.Errorf("failed to update user onboarded flag: %w", err)
	}

	return nil
}

func (r *userRepository) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	var userID string
	query := r.client.Session.Query(
		`SELECT user_id FROM email_to_user WHERE email_hash = ? LIMIT 1`,
		hashEmail(email)).WithContext(ctx)

	err := query.Scan(&userID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check email: %w", err)
	}

	return true, nil
}
