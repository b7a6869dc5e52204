package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyClaimedToday = errors.New("daily bonus already claimed today")
	ErrUnknownItem        = errors.New("item not in reward catalog")
	ErrInsufficientFunds  = errors.New("insufficient StepCoin balance")

	// Step source errors
	ErrSourceUnavailable = errors.New("step source unavailable")

	// Account errors
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrEmailTaken        = errors.New("email already registered")
	ErrBadCredentials    = errors.New("invalid email or password")
	ErrNotVerified       = errors.New("email address not verified")
	ErrInvalidToken      = errors.New("invalid or expired token")

	// Social errors
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrSelfFriendship   = errors.New("cannot send a friend request to yourself")
)
