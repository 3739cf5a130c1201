package otp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/repository/scylla"
)

type fakeOTPRepo struct {
	rows        map[string]*models.OTPCode
	markUsedErr error
}

func newFakeOTPRepo() *fakeOTPRepo {
	return &fakeOTPRepo{rows: map[string]*models.OTPCode{}}
}

func rowKey(userID string, purpose models.OTPPurpose) string {
	return userID + "|" + string(purpose)
}

func (f *fakeOTPRepo) Upsert(ctx context.Context, otp *models.OTPCode) error {
	otp.CreatedAt = time.Now().UTC()
	otp.Used = false
	otp.UsedAt = nil
	clone := *otp
	f.rows[rowKey(otp.UserID, otp.Purpose)] = &clone
	return nil
}

func (f *fakeOTPRepo) Get(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	row, ok := f.rows[rowKey(userID, purpose)]
	if !ok {
		return nil, fmt.Errorf("verification code: %w", scylla.ErrNotFound)
	}
	clone := *row
	return &clone, nil
}

func (f *fakeOTPRepo) MarkUsed(ctx context.Context, userID string, purpose models.OTPPurpose, usedAt time.Time) error {
	if f.markUsedErr != nil {
		return f.markUsedErr
	}
	row, ok := f.rows[rowKey(userID, purpose)]
	if !ok {
		return fmt.Errorf("verification code: %w", scylla.ErrNotFound)
	}
	row.Used = true
	row.UsedAt = &usedAt
	return nil
}

func (f *fakeOTPRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	deleted := 0
	for k, row := range f.rows {
		if row.ExpiresAt.Before(before) {
			delete(f.rows, k)
			deleted++
		}
	}
	return deleted, nil
}

type fakeNotifier struct {
	deliveries []Delivery
	fail       error
}

func (f *fakeNotifier) Send(ctx context.Context, d Delivery) error {
	if f.fail != nil {
		return f.fail
	}
	f.deliveries = append(f.deliveries, d)
	return nil
}

func newTestService() (*Service, *fakeOTPRepo, *fakeNotifier) {
	repo := newFakeOTPRepo()
	notifier := &fakeNotifier{}
	cfg := &config.Config{}
	cfg.OTP.TTL = 5 * time.Minute
	return NewService(repo, notifier, cfg), repo, notifier
}

func TestIssueGeneratesAndDeliversCode(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	masked, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	assert.Equal(t, "m*****@example.com", masked)

	require.Len(t, notifier.deliveries, 1)
	delivered := notifier.deliveries[0]
	assert.Regexp(t, `^\d{6}$`, delivered.Code)
	assert.Equal(t, models.PurposePasswordChange, delivered.Purpose)

	stored := repo.rows[rowKey("u-1", models.PurposePasswordChange)]
	require.NotNil(t, stored)
	assert.Equal(t, delivered.Code, stored.Code)
	assert.False(t, stored.Used)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), stored.ExpiresAt, 5*time.Second)
}

func TestIssueReplacesPriorCode(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)

	require.Len(t, notifier.deliveries, 2)
	first, second := notifier.deliveries[0].Code, notifier.deliveries[1].Code

	// At most one live code per (user, purpose): the first stops working
	// the instant the second lands.
	if first != second {
		assert.ErrorIs(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, first), ErrNotFoundOrExpired)
	}
	assert.NoError(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, second))
}

func TestIssueDeliveryFailureSurfaces(t *testing.T) {
	svc, _, notifier := newTestService()
	notifier.fail = errors.New("broker unreachable")

	_, err := svc.Issue(context.Background(), "u-1", "morgan@example.com", models.PurposePasswordChange)
	assert.Error(t, err)
}

func TestVerifyIsReadOnly(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	require.NoError(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, code))
	require.NoError(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, code))

	stored := repo.rows[rowKey("u-1", models.PurposePasswordChange)]
	assert.False(t, stored.Used, "verify must not consume")
	assert.Nil(t, stored.UsedAt)
}

func TestVerifyRejections(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	assert.ErrorIs(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, "000000"),
		ErrNotFoundOrExpired, "wrong code")
	assert.ErrorIs(t, svc.Verify(ctx, "u-1", models.PurposeEmailVerify, code),
		ErrNotFoundOrExpired, "wrong purpose has no row")
	assert.ErrorIs(t, svc.Verify(ctx, "u-2", models.PurposePasswordChange, code),
		ErrNotFoundOrExpired, "wrong user")

	repo.rows[rowKey("u-1", models.PurposePasswordChange)].ExpiresAt = time.Now().Add(-time.Second)
	assert.ErrorIs(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, code),
		ErrNotFoundOrExpired, "expired")
}

func TestConsumeRunsMutationThenMarksUsed(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	mutations := 0
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		mutations++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, mutations)

	stored := repo.rows[rowKey("u-1", models.PurposePasswordChange)]
	assert.True(t, stored.Used)
	require.NotNil(t, stored.UsedAt)

	// Replay attempts are told the code was spent, and the mutation does
	// not run again.
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		mutations++
		return nil
	})
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Equal(t, 1, mutations)

	assert.ErrorIs(t, svc.Verify(ctx, "u-1", models.PurposePasswordChange, code), ErrNotFoundOrExpired)
}

func TestConsumeMutationFailureKeepsCodeLive(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	boom := errors.New("store rejected write")
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored := repo.rows[rowKey("u-1", models.PurposePasswordChange)]
	assert.False(t, stored.Used, "failed mutation must not spend the code")

	// The retry with the same code goes through.
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestConsumeWrongCodeLeavesMutationUnrun(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)

	ran := false
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, "999999", func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFoundOrExpired)
	assert.False(t, ran)
}

func TestConsumePurposeMismatchOnCorruptRow(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	// A row whose purpose column diverged from its partition is refused.
	repo.rows[rowKey("u-1", models.PurposePasswordChange)].Purpose = models.PurposeAccountRecovery

	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrPurposeMismatch)
}

func TestConsumeMarkUsedFailureSurfaces(t *testing.T) {
	svc, repo, notifier := newTestService()
	ctx := context.Background()

	_, err := svc.Issue(ctx, "u-1", "morgan@example.com", models.PurposePasswordChange)
	require.NoError(t, err)
	code := notifier.deliveries[0].Code

	repo.markUsedErr = errors.New("write timeout")

	ran := false
	err = svc.Consume(ctx, "u-1", models.PurposePasswordChange, code, func(context.Context) error {
		ran = true
		return nil
	})
	assert.Error(t, err)
	assert.True(t, ran, "mutation already landed before the bookkeeping failed")
}
