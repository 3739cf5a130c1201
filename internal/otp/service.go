package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

var (
	ErrNotFoundOrExpired = errors.New("verification code not found or expired")
	ErrAlreadyUsed       = errors.New("verification code already used")
	ErrPurposeMismatch   = errors.New("verification code purpose mismatch")
)

// Service owns the verification code lifecycle. A (user, purpose) pair has
// at most one live code at any moment: Issue overwrites, Verify peeks,
// Consume spends.
type Service struct {
	repo     scylla.OTPRepository
	notifier Notifier
	ttl      time.Duration
}

func NewService(repo scylla.OTPRepository, notifier Notifier, cfg *config.Config) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		ttl:      cfg.OTP.TTL,
	}
}

// Issue stores a fresh random code for (user, purpose), atomically replacing
// any earlier one, and hands it to the notifier. The caller gets back only
// the masked address the code went to.
func (s *Service) Issue(ctx context.Context, userID, email string, purpose models.OTPPurpose) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}

	record := &models.OTPCode{
		UserID:    userID,
		Purpose:   purpose,
		Email:     email,
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}

	if err := s.repo.Upsert(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}

	delivery := Delivery{
		UserID:    userID,
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: record.ExpiresAt,
	}
	if err := s.notifier.Send(ctx, delivery); err != nil {
		util.Error("Failed to deliver verification code",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return "", fmt.Errorf("failed to deliver verification code: %w", err)
	}

	return util.MaskEmail(email), nil
}

// Verify checks a candidate against the live code without consuming it.
// Absent, expired, used, and mismatched all collapse to the same answer.
func (s *Service) Verify(ctx context.Context, userID string, purpose models.OTPPurpose, code string) error {
	record, err := s.repo.Get(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrNotFoundOrExpired
		}
		return fmt.Errorf("failed to load verification code: %w", err)
	}

	if !record.Live(time.Now().UTC()) || !codesMatch(code, record.Code) {
		return ErrNotFoundOrExpired
	}

	return nil
}

// Consume validates the code, runs the guarded mutation, and only marks the
// code used once the mutation succeeded. A failed mutation leaves the code
// live so the user can retry without requesting a new one.
func (s *Service) Consume(ctx context.Context, userID string, purpose models.OTPPurpose, code string, mutate func(context.Context) error) error {
	record, err := s.repo.Get(ctx, userID, purpose)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrNotFoundOrExpired
		}
		return fmt.Errorf("failed to load verification code: %w", err)
	}

	if record.Used {
		return ErrAlreadyUsed
	}
	if record.Purpose != purpose {
		return ErrPurposeMismatch
	}
	if time.Now().UTC().After(record.ExpiresAt) || !codesMatch(code, record.Code) {
		return ErrNotFoundOrExpired
	}

	if err := mutate(ctx); err != nil {
		return err
	}

	usedAt := time.Now().UTC()
	if err := s.repo.MarkUsed(ctx, userID, purpose, usedAt); err != nil {
		// The mutation already landed; the code stays spendable until it
		// expires. Surface the failure rather than pretending it is clean.
		util.Error("Failed to mark verification code as used",
			zap.String("user_id", userID),
			zap.String("purpose", string(purpose)),
			zap.Error(err))
		return fmt.Errorf("failed to mark verification code as used: %w", err)
	}

	return nil
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func codesMatch(candidate, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}
