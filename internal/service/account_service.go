package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"finboard/internal/hashing"
	"finboard/internal/models"
	"finboard/internal/otp"
	"finboard/internal/repository/scylla"
	"finboard/internal/util"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidLogin = errors.New("invalid email or password")
	ErrUserNotFound = errors.New("user not found")
)

// AccountService handles registration, login, profile and the password
// change flow.
type AccountService struct {
	users      scylla.UserRepository
	onboarding scylla.OnboardingRepository
	notes      scylla.NotificationRepository
	hasher     *hashing.Hasher
	otp        *otp.Service
	logger     *zap.Logger
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

type SaveOnboardingRequest struct {
	RiskTolerance string `json:"risk_tolerance"`
	Goal          string `json:"goal"`
	HorizonYears  int    `json:"horizon_years"`
	IncomeBand    string `json:"income_band"`
}

func NewAccountService(
	users scylla.UserRepository,
	onboarding scylla.OnboardingRepository,
	notes scylla.NotificationRepository,
	hasher *hashing.Hasher,
	otpService *otp.Service,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		users:      users,
		onboarding: onboarding,
		notes:      notes,
		hasher:     hasher,
		otp:        otpService,
		logger:     logger,
	}
}

// Register creates a new account with the user role. The welcome
// notification is best-effort.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	startTime := time.Now()

	if err := s.validateRegisterRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	email := normalizeEmail(req.Email)

	taken, err := s.users.IsEmailTaken(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    util.SanitizeInput(req.FirstName),
		LastName:     util.SanitizeInput(req.LastName),
		Role:         string(models.RoleUser),
		Onboarded:    false,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	welcome := &models.Notification{
		UserID: user.UserID,
		Kind:   models.NotificationKindSystem,
		Title:  "Welcome to Finboard",
		Body:   "Complete your onboarding profile to get started.",
	}
	if err := s.notes.Insert(ctx, welcome); err != nil {
		s.logger.Warn("Failed to insert welcome notification",
			util.ErrorField(err),
			util.String("user_id", user.UserID),
		)
	}

	s.logger.Info("Account registered",
		util.String("user_id", user.UserID),
		util.String("email", util.MaskEmail(user.Email)),
		util.Duration("duration", time.Since(startTime)),
	)

	return user, nil
}

// Login verifies credentials and reports the authenticated user. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*models.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := s.hasher.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidLogin
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.UserID, now); err != nil {
		s.logger.Warn("Failed to record last login",
			util.ErrorField(err),
			util.String("user_id", user.UserID),
		)
	}
	user.LastLoginAt = &now

	s.logger.Info("User logged in",
		util.String("user_id", user.UserID),
	)

	return user, nil
}

// GetProfile returns the stored user record.
func (s *AccountService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile applies the provided name fields and returns the updated
// record.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		name, err := cleanName(*req.FirstName)
		if err != nil {
			return nil, fmt.Errorf("%w: first name %v", ErrInvalidInput, err)
		}
		user.FirstName = name
	}
	if req.LastName != nil {
		name, err := cleanName(*req.LastName)
		if err != nil {
			return nil, fmt.Errorf("%w: last name %v", ErrInvalidInput, err)
		}
		user.LastName = name
	}

	if err := s.users.UpdateNames(ctx, userID, user.FirstName, user.LastName); err != nil {
		return nil, fmt.Errorf("failed to update names: %w", err)
	}

	s.logger.Info("Profile updated",
		util.String("user_id", userID),
	)

	return user, nil
}

// GetOnboarding returns the questionnaire answers, or an empty profile when
// the user has not started onboarding yet.
func (s *AccountService) GetOnboarding(ctx context.Context, userID string) (*models.OnboardingProfile, error) {
	profile, err := s.onboarding.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return &models.OnboardingProfile{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get onboarding profile: %w", err)
	}
	return profile, nil
}

// SaveOnboarding stores the questionnaire answers. Once every required
// answer is present the user record is flagged onboarded.
func (s *AccountService) SaveOnboarding(ctx context.Context, userID string, req *SaveOnboardingRequest) (*models.OnboardingProfile, error) {
	if err := s.validateOnboardingRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	profile := &models.OnboardingProfile{
		UserID:        userID,
		RiskTolerance: req.RiskTolerance,
		Goal:          req.Goal,
		HorizonYears:  req.HorizonYears,
		IncomeBand:    req.IncomeBand,
		Completed:     req.RiskTolerance != "" && req.Goal != "" && req.HorizonYears > 0 && req.IncomeBand != "",
	}

	if err := s.onboarding.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save onboarding profile: %w", err)
	}

	if profile.Completed {
		if err := s.users.SetOnboarded(ctx, userID, true); err != nil {
			s.logger.Warn("Failed to flag user onboarded",
				util.ErrorField(err),
				util.String("user_id", userID),
			)
		}
	}

	s.logger.Info("Onboarding profile saved",
		util.String("user_id", userID),
		util.Bool("completed", profile.Completed),
	)

	return profile, nil
}

// RequestPasswordChange issues a verification code to the account email and
// returns the masked destination.
func (s *AccountService) RequestPasswordChange(ctx context.Context, userID string) (string, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.otp.Issue(ctx, user.UserID, user.Email, models.PurposePasswordChange)
}

// VerifyPasswordCode checks the code without consuming it, so the client can
// confirm the code before submitting the new password.
func (s *AccountService) VerifyPasswordCode(ctx context.Context, userID, code string) error {
	return s.otp.Verify(ctx, userID, models.PurposePasswordChange, code)
}

// ChangePassword consumes the verification code and persists the new hash.
// The code is only marked used after the hash write succeeds.
func (s *AccountService) ChangePassword(ctx context.Context, userID, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	passwordHash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.otp.Consume(ctx, userID, models.PurposePasswordChange, code, func(ctx context.Context) error {
		return s.users.UpdatePasswordHash(ctx, userID, passwordHash)
	})
	if err != nil {
		return err
	}

	alert := &models.Notification{
		UserID: userID,
		Kind:   models.NotificationKindSecurity,
		Title:  "Password changed",
		Body:   "Your account password was changed. If this was not you, contact support immediately.",
	}
	if err := s.notes.Insert(ctx, alert); err != nil {
		s.logger.Warn("Failed to insert password change notification",
			util.ErrorField(err),
			util.String("user_id", userID),
		)
	}

	s.logger.Info("Password changed",
		util.String("user_id", userID),
	)

	return nil
}

// Validation

func (s *AccountService) validateRegisterRequest(req *RegisterRequest) error {
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	if _, err := cleanName(req.FirstName); err != nil {
		return fmt.Errorf("first name %v", err)
	}
	if _, err := cleanName(req.LastName); err != nil {
		return fmt.Errorf("last name %v", err)
	}
	return nil
}

func (s *AccountService) validateOnboardingRequest(req *SaveOnboardingRequest) error {
	validRisk := map[string]bool{"": true, "conservative": true, "balanced": true, "aggressive": true}
	if !validRisk[req.RiskTolerance] {
		return fmt.Errorf("unknown risk tolerance: %s", req.RiskTolerance)
	}
	validGoal := map[string]bool{"": true, "growth": true, "income": true, "preservation": true}
	if !validGoal[req.Goal] {
		return fmt.Errorf("unknown goal: %s", req.Goal)
	}
	if req.HorizonYears < 0 || req.HorizonYears > 60 {
		return fmt.Errorf("horizon must be between 0 and 60 years")
	}
	validBand := map[string]bool{"": true, "low": true, "mid": true, "high": true}
	if !validBand[req.IncomeBand] {
		return fmt.Errorf("unknown income band: %s", req.IncomeBand)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long")
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("email is malformed")
	}
	if !strings.Contains(email[at:], ".") || strings.ContainsAny(email, " \t") {
		return fmt.Errorf("email is malformed")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters")
	}
	return nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("is required")
	}
	if len(name) > 64 {
		return "", fmt.Errorf("is too long")
	}
	if util.ContainsSuspicious(name) {
		return "", fmt.Errorf("contains disallowed characters")
	}
	return util.SanitizeInput(name), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
