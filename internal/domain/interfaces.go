package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// LedgerStore abstracts persistent ledger storage. Load and Save must be
// atomic: Save commits the updated state and any new history entries as one
// transaction or not at all.
type LedgerStore interface {
	// LoadLedgerState returns the state for a user, or nil if the user has
	// never been observed.
	LoadLedgerState(ctx context.Context, userID string) (*LedgerState, error)

	// SaveLedgerState persists state and appends newEntries in a single
	// transaction.
	SaveLedgerState(ctx context.Context, state LedgerState, newEntries []HistoryEntry) error

	// History returns the full append-only history in insertion order
	// (oldest first).
	History(ctx context.Context, userID string) ([]HistoryEntry, error)

	// InsertReceipt records a redemption receipt.
	InsertReceipt(ctx context.Context, r RedemptionReceipt) error

	// ListReceipts returns the user's receipts, oldest first.
	ListReceipts(ctx context.Context, userID string) ([]RedemptionReceipt, error)
}

// StepSource supplies a monotonic cumulative step count for a date range.
// Implementations wrap whatever health platform the phone reports from.
// A failed query returns ErrSourceUnavailable; callers treat that as
// "no new information" and retry later.
type StepSource interface {
	CumulativeSteps(ctx context.Context, userID string, windowStart, windowEnd time.Time) (int64, error)
}

// ReceiptSink records redemption receipts for downstream delivery.
// Fire-and-forget from the ledger's perspective: delivery is external.
type ReceiptSink interface {
	EmitReceipt(ctx context.Context, receipt RedemptionReceipt)
}

// RewardCatalog is the read-only list of redeemable items.
type RewardCatalog interface {
	ListItems() []RewardItem
	// Lookup returns nil if the item is not in the catalog.
	Lookup(name string) *RewardItem
}

// UserStore abstracts account persistence. Get methods return nil when no
// account matches.
type UserStore interface {
	InsertUser(ctx context.Context, u User, verifyToken string) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	VerifyUser(ctx context.Context, token string) (bool, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateProfile(ctx context.Context, userID, firstName, lastName string, dailyGoal int64) error
	DailyGoal(ctx context.Context, userID string) (int64, error)
	DeleteUser(ctx context.Context, userID string) error
}

// SocialStore abstracts friend graph persistence.
type SocialStore interface {
	SearchUsers(ctx context.Context, prefix string, limit int) ([]Friend, error)
	InsertFriendRequest(ctx context.Context, r FriendRequest) error
	GetFriendRequest(ctx context.Context, id string) (*FriendRequest, error)
	UpdateFriendRequestStatus(ctx context.Context, id string, status RequestStatus) error
	PendingRequests(ctx context.Context, userID string) ([]FriendRequest, error)
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
	ListFriends(ctx context.Context, userID string) ([]Friend, error)
}

// StepTracker abstracts daily step-count persistence for profiles and
// friend leaderboards.
type StepTracker interface {
	UpsertDailySteps(ctx context.Context, userID, date string, steps int64) error
	DailySteps(ctx context.Context, userID, date string) (int64, error)
}
