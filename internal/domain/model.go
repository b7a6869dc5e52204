// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ─── Currency Constants ─────────────────────────────────────────────────────

// ExchangeRate is the fixed conversion rate: 100 steps = 1 StepCoin.
// The per-observation remainder (delta % ExchangeRate) is discarded, not
// carried forward, so frequent small observations under-count versus a single
// large observation of the same total delta. Known product behavior.
const ExchangeRate = 100

// BonusPerMinute is the meditation bonus rate: 10 StepCoins per minute.
const BonusPerMinute = 10

// AllowedBonusMinutes is the closed set of meditation session durations.
var AllowedBonusMinutes = []int{10, 20, 30}

// BonusReward returns the StepCoin reward for a meditation session, or 0 if
// the duration is not one of the allowed tiers.
func BonusReward(minutes int) int64 {
	for _, m := range AllowedBonusMinutes {
		if minutes == m {
			return int64(minutes * BonusPerMinute)
		}
	}
	return 0
}

// ─── Sources ────────────────────────────────────────────────────────────────

// Source identifies which independently-tracked balance a ledger entry
// belongs to. Walking and meditation balances are kept separate because
// redemption deducts from them in a fixed priority order.
type Source string

const (
	SourceWalking    Source = "walking"
	SourceMeditation Source = "meditation"
	// SourceMixed marks a redemption that drew from both balances.
	SourceMixed Source = "mixed"
)

// ─── Ledger State ───────────────────────────────────────────────────────────

// LedgerState is the persisted per-user accounting state. One row per user,
// created zero-valued on first observation.
type LedgerState struct {
	UserID string `json:"user_id"`

	// LastObservedSteps is the most recent cumulative step count already
	// converted to currency. Never decreases except via an explicit
	// operator reset.
	LastObservedSteps int64 `json:"last_observed_steps"`

	WalkingBalance    int64 `json:"walking_balance"`
	MeditationBalance int64 `json:"meditation_balance"`

	// LastBonusDate is the calendar date (yyyy-mm-dd) of the last daily
	// bonus claim; empty if never claimed.
	LastBonusDate string `json:"last_bonus_date,omitempty"`

	// TotalLifetimeSteps counts every observed step regardless of currency
	// conversion. Used for achievement tiers only.
	TotalLifetimeSteps int64 `json:"total_lifetime_steps"`
}

// CombinedBalance returns the spendable total across both sources.
func (s LedgerState) CombinedBalance() int64 {
	return s.WalkingBalance + s.MeditationBalance
}

// HistoryEntry is a single row in the append-only ledger history.
// Positive amounts are earnings, negative amounts are redemptions.
// Entries are never mutated or deleted.
type HistoryEntry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	At          time.Time `json:"at"`
	Amount      int64     `json:"amount"`
	Source      Source    `json:"source"`
	Description string    `json:"description,omitempty"`
}

// StepReading is a cumulative step count observed at a point in time.
// Transient input to the ledger; not independently persisted.
type StepReading struct {
	Cumulative int64     `json:"cumulative"`
	ObservedAt time.Time `json:"observed_at"`
}

// ─── Operation Results ──────────────────────────────────────────────────────

// AccrualResult reports the outcome of a step observation.
type AccrualResult struct {
	Earned            int64 `json:"earned"`
	NewWalkingBalance int64 `json:"new_walking_balance"`
}

// BonusResult reports the outcome of a daily bonus claim.
type BonusResult struct {
	Earned          int64 `json:"earned"`
	NewBonusBalance int64 `json:"new_bonus_balance"`
}

// RedemptionResult reports the outcome of a reward redemption.
type RedemptionResult struct {
	RemainingBalance int64 `json:"remaining_balance"`
	ReceiptIssued    bool  `json:"receipt_issued"`
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// RewardItem is an entry in the reward catalog: something StepCoins buy.
type RewardItem struct {
	Name string `json:"name"`
	Cost int64  `json:"cost"`
}

// RedemptionReceipt records a successful redemption for downstream delivery
// (email confirmation, push notification). Exactly one per redemption.
type RedemptionReceipt struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	ItemName string    `json:"item_name"`
	Cost     int64     `json:"cost"`
	At       time.Time `json:"at"`
}

// ─── Achievement Tiers ──────────────────────────────────────────────────────

// Tier is a lifetime-steps achievement level.
type Tier string

const (
	TierNone   Tier = "none"
	TierBronze Tier = "bronze"
	TierSilver Tier = "silver"
	TierGold   Tier = "gold"
)

// TierForSteps returns the achievement tier for a lifetime step count.
func TierForSteps(lifetime int64) Tier {
	switch {
	case lifetime >= 10000:
		return TierGold
	case lifetime >= 5000:
		return TierSilver
	case lifetime >= 1000:
		return TierBronze
	default:
		return TierNone
	}
}

// ─── Utilities ──────────────────────────────────────────────────────────────

// DateOf formats a time as a calendar date (yyyy-mm-dd) for once-per-day
// gating. The time component is deliberately dropped.
func DateOf(t time.Time) string {
	return t.Format(time.DateOnly)
}

// FormatCoins renders a StepCoin amount for display.
func FormatCoins(n int64) string {
	return fmt.Sprintf("%d StepCoins", n)
}
