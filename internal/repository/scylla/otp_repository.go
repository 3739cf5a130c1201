package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/util"
)

type otpRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient) OTPRepository {
	return &otpRepository{
		client: client,
	}
}

// Upsert writes the single verification row for (user_id, purpose). The
// partition key is exactly that pair, so one INSERT atomically replaces any
// earlier code along with its used marker.
func (r *otpRepository) Upsert(ctx context.Context, otp *models.OTPCode) error {
	now := time.Now().UTC()
	otp.CreatedAt = now
	otp.Used = false
	otp.UsedAt = nil

	if otp.ExpiresAt.IsZero() {
		otp.ExpiresAt = now.Add(5 * time.Minute)
	}

	query := r.client.Prepared.UpsertOTP.Bind(
		otp.UserID, string(otp.Purpose), otp.Email, otp.Code,
		otp.ExpiresAt, otp.CreatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to upsert verification code",
			zap.String("user_id", otp.UserID),
			zap.String("purpose", string(otp.Purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to upsert verification code: %w", err)
	}

	util.Info("Verification code stored",
		zap.String("user_id", otp.UserID),
		zap.String("purpose", string(otp.Purpose)),
		zap.Time("expires_at", otp.ExpiresAt))

	return nil
}

func (r *otpRepository) Get(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	otp := &models.OTPCode{}
	var storedPurpose string

	query := r.client.Prepared.GetOTP.Bind(userID, string(purpose)).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&otp.UserID, &storedPurpose, &otp.Email, &otp.Code,
		&otp.Used, &otp.UsedAt, &otp.ExpiresAt, &otp.CreatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("verification code for user %s purpose %s: %w", userID, purpose, ErrNotFound)
		}
		util.Error("Failed to get verification code",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get verification code: %w", err)
	}

	otp.Purpose = models.OTPPurpose(storedPurpose)
	return otp, nil
}

func (r *otpRepository) MarkUsed(ctx context.Context, userID string, purpose models.OTPPurpose, usedAt time.Time) error {
	query := r.client.Prepared.MarkOTPUsed.Bind(
		usedAt, userID, string(purpose)).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark verification code as used",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to mark verification code as used: %w", err)
	}

	util.Info("Verification code marked as used",
		zap.String("user_id", userID),
		zap.String("purpose", string(purpose)))

	return nil
}

// DeleteExpired sweeps rows whose expiry passed before the cutoff. Expiry is
// enforced at read time; this keeps the table from accumulating dead rows.
func (r *otpRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	iter := r.client.Session.Query(`
        SELECT user_id, purpose FROM otp_codes
        WHERE expires_at < ? ALLOW FILTERING`, before).WithContext(ctx).Iter()

	var userID, purpose string
	deletedCount := 0

	// Use batch delete for better performance
	batch := r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batchSize := 0

	for iter.Scan(&userID, &purpose) {
		batch.Query(`DELETE FROM otp_codes WHERE user_id = ? AND purpose = ?`, userID, purpose)
		batchSize++

		// Execute batch when it reaches 100 items
		if batchSize >= 100 {
			if err := r.client.ExecuteBatch(batch); err != nil {
				util.Error("Failed to execute batch delete for expired codes", zap.Error(err))
				iter.Close()
				return deletedCount, fmt.Errorf("failed to delete expired codes: %w", err)
			}
			deletedCount += batchSize
			batch = r.client.Session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
			batchSize = 0
		}
	}

	// Execute remaining batch
	if batchSize > 0 {
		if err := r.client.ExecuteBatch(batch); err != nil {
			util.Error("Failed to execute final batch delete for expired codes", zap.Error(err))
			iter.Close()
			return deletedCount, fmt.Errorf("failed to delete expired codes: %w", err)
		}
		deletedCount += batchSize
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to close iterator for expired code cleanup", zap.Error(err))
		return deletedCount, fmt.Errorf("failed to clean up expired codes: %w", err)
	}

	if deletedCount > 0 {
		util.Info("Expired verification codes deleted", zap.Int("deleted_count", deletedCount))
	}
	return deletedCount, nil
}
