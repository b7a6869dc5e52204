package domain

import "time"

// ─── Account Types ──────────────────────────────────────────────────────────

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the user-editable subset of account data plus derived stats,
// as shown on the profile screen.
type Profile struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DailyGoal  int64  `json:"daily_goal"`
	DailySteps int64  `json:"daily_steps"`
	Tier       Tier   `json:"tier"`
}

// DefaultDailyGoal is the step goal assigned to new accounts.
const DefaultDailyGoal = 10000

// ─── Friend Types ───────────────────────────────────────────────────────────

// Friend is another user as seen from a friends list, with their current
// daily step count for the leaderboard row.
type Friend struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	DailySteps int64  `json:"daily_steps"`
}

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestDeclined RequestStatus = "declined"
)

// FriendRequest is a directed invitation between two users.
type FriendRequest struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
