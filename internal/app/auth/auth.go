// Package auth implements account lifecycle: signup with email
// verification, login issuing JWT sessions, password changes, profile
// management, and account deletion.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// MinPasswordLength is enforced at signup and password change.
const MinPasswordLength = 8

// Issuer appears in every session token.
const Issuer = "stepcoin"

// Store is everything the auth service needs from persistence. The sqlite
// package satisfies it.
type Store interface {
	domain.UserStore
	domain.StepTracker
	LoadLedgerState(ctx context.Context, userID string) (*domain.LedgerState, error)
	SaveLedgerState(ctx context.Context, state domain.LedgerState, newEntries []domain.HistoryEntry) error
	DeleteLedger(ctx context.Context, userID string) error
}

// Service carries account operations.
type Service struct {
	store    Store
	secret   []byte
	tokenTTL time.Duration

	// injectable for tests
	now func() time.Time
}

// New builds an auth service signing session tokens with secret.
func New(store Store, secret []byte, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		store:    store,
		secret:   secret,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// ─── Signup & Verification ──────────────────────────────────────────────────

// SignupResult reports the created account and its verification token.
// The token would normally travel by email; callers decide delivery.
type SignupResult struct {
	UserID      string `json:"user_id"`
	VerifyToken string `json:"verify_token"`
}

// Signup creates an account with a hashed password and an unverified state.
// Email and username must be unused. A zeroed ledger is initialized in the
// same flow; if that write fails the account row is rolled back so no
// half-created account remains.
func (s *Service) Signup(ctx context.Context, email, username, firstName, lastName, password string) (SignupResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if email == "" || !strings.Contains(email, "@") || username == "" {
		return SignupResult{}, fmt.Errorf("%w: email and username are required", domain.ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return SignupResult{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinPasswordLength)
	}

	if existing, err := s.store.GetUserByEmail(ctx, email); err != nil {
		return SignupResult{}, fmt.Errorf("check email: %w", err)
	} else if existing != nil {
		return SignupResult{}, domain.ErrEmailTaken
	}
	if existing, err := s.store.GetUserByUsername(ctx, username); err != nil {
		return SignupResult{}, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return SignupResult{}, domain.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SignupResult{}, fmt.Errorf("hash password: %w", err)
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	verifyToken := uuid.NewString()
	if err := s.store.InsertUser(ctx, u, verifyToken); err != nil {
		return SignupResult{}, fmt.Errorf("create account: %w", err)
	}

	if err := s.store.SaveLedgerState(ctx, domain.LedgerState{UserID: u.ID}, nil); err != nil {
		// Roll the account back rather than leave it without a ledger.
		if delErr := s.store.DeleteUser(ctx, u.ID); delErr != nil {
			return SignupResult{}, fmt.Errorf("init ledger: %w (rollback also failed: %v)", err, delErr)
		}
		return SignupResult{}, fmt.Errorf("init ledger: %w", err)
	}

	return SignupResult{UserID: u.ID, VerifyToken: verifyToken}, nil
}

// Verify consumes a verification token, activating the account it belongs to.
func (s *Service) Verify(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}
	ok, err := s.store.VerifyUser(ctx, token)
	if err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	if !ok {
		return domain.ErrInvalidToken
	}
	return nil
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// Login checks credentials and issues a signed session token. Unverified
// accounts cannot log in.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}
	if u == nil {
		return "", domain.ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.ErrBadCredentials
	}
	if !u.Verified {
		return "", domain.ErrNotVerified
	}
	return s.issueToken(u.ID)
}

func (s *Service) issueToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a session token and returns the user ID it carries.
func (s *Service) ParseToken(tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", domain.ErrInvalidToken
	}
	return claims.Subject, nil
}

// ─── Account Management ─────────────────────────────────────────────────────

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidInput, MinPasswordLength)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if u == nil {
		return domain.ErrUserNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return domain.ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeleteAccount removes the account, its ledger state, history, and
// receipts. Ledger rows go first so an interrupted delete leaves a login
// that still works rather than an orphaned balance.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if u == nil {
		return domain.ErrUserNotFound
	}
	if err := s.store.DeleteLedger(ctx, userID); err != nil {
		return fmt.Errorf("delete ledger: %w", err)
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// ─── Profile ────────────────────────────────────────────────────────────────

// Profile assembles the user's profile view: identity, daily goal, today's
// steps, and the achievement tier earned from lifetime steps.
func (s *Service) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load account: %w", err)
	}
	if u == nil {
		return domain.Profile{}, domain.ErrUserNotFound
	}

	goal, err := s.store.DailyGoal(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load goal: %w", err)
	}
	today, err := s.store.DailySteps(ctx, userID, domain.DateOf(s.now()))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("load daily steps: %w", err)
	}

	var lifetime int64
	if state, err := s.store.LoadLedgerState(ctx, userID); err != nil {
		return domain.Profile{}, fmt.Errorf("load ledger: %w", err)
	} else if state != nil {
		lifetime = state.TotalLifetimeSteps
	}

	return domain.Profile{
		UserID:     u.ID,
		Email:      u.Email,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		DailyGoal:  goal,
		DailySteps: today,
		Tier:       domain.TierForSteps(lifetime),
	}, nil
}

// UpdateProfile replaces the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID, firstName, lastName string, dailyGoal int64) error {
	if dailyGoal <= 0 {
		return fmt.Errorf("%w: daily goal must be positive", domain.ErrInvalidInput)
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if u == nil {
		return domain.ErrUserNotFound
	}
	if err := s.store.UpdateProfile(ctx, userID, firstName, lastName, dailyGoal); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// RecordDailySteps upserts today's step count for profile and friend views.
func (s *Service) RecordDailySteps(ctx context.Context, userID string, steps int64) error {
	if steps < 0 {
		return fmt.Errorf("%w: steps must be non-negative", domain.ErrInvalidInput)
	}
	return s.store.UpsertDailySteps(ctx, userID, domain.DateOf(s.now()), steps)
}
