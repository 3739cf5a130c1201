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

type onboardingRepository struct {
	client *ScyllaClient
}

func NewOnboardingRepository(client *ScyllaClient) OnboardingRepository {
	return &onboardingRepository{
		client: client,
	}
}

func (r *onboardingRepository) Upsert(ctx context.Context, profile *models.OnboardingProfile) error {
	profile.UpdatedAt = time.Now().UTC()

	query := r.client.Prepared.UpsertOnboarding.Bind(
		profile.UserID, profile.RiskTolerance, profile.Goal,
		profile.HorizonYears, profile.IncomeBand, profile.Completed,
		profile.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to upsert onboarding profile",
			zap.String("user_id", profile.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert onboarding profile: %w", err)
	}

	util.Info("Onboarding profile saved",
		zap.String("user_id", profile.UserID),
		zap.Bool("completed", profile.Completed))

	return nil
}

func (r *onboardingRepository) Get(ctx context.Context, userID string) (*models.OnboardingProfile, error) {
	profile := &models.OnboardingProfile{}

	query := r.client.Prepared.GetOnboarding.Bind(userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&profile.UserID, &profile.RiskTolerance, &profile.Goal,
		&profile.HorizonYears, &profile.IncomeBand, &profile.Completed,
		&profile.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("onboarding profile for user %s: %w", userID, ErrNotFound)
		}
		util.Error("Failed to get onboarding profile",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get onboarding profile: %w", err)
	}

	return profile, nil
}
