// Package ledger is the single authority for StepCoin accounting: converting
// observed step deltas into currency, granting the daily meditation bonus,
// and processing redemptions against the reward catalog, while keeping an
// append-only audit history.
//
// All mutating operations are serialized per user and persist state plus new
// history entries as one atomic transaction. A persistence failure leaves no
// partial mutation observable: the in-memory state is discarded and the error
// surfaced for retry.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/letsbehealthy/stepcoin/internal/domain"
	"github.com/letsbehealthy/stepcoin/internal/infra/observability"
)

// Service owns all ledger mutations. Construct once at startup and pass by
// reference; user scoping is explicit via the userID parameter on every
// operation.
type Service struct {
	store    domain.LedgerStore
	catalog  domain.RewardCatalog
	receipts domain.ReceiptSink

	// now is injectable for calendar-date tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the ledger service. receipts may be nil when no downstream
// delivery is wired; redemptions still persist their receipt either way.
func New(store domain.LedgerStore, catalog domain.RewardCatalog, receipts domain.ReceiptSink) *Service {
	return &Service{
		store:    store,
		catalog:  catalog,
		receipts: receipts,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing operations for one user.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// loadOrInit returns the user's state, zero-initialized on first contact.
func (s *Service) loadOrInit(ctx context.Context, userID string) (domain.LedgerState, error) {
	state, err := s.store.LoadLedgerState(ctx, userID)
	if err != nil {
		return domain.LedgerState{}, err
	}
	if state == nil {
		return domain.LedgerState{UserID: userID}, nil
	}
	return *state, nil
}

// ─── Step Accrual ───────────────────────────────────────────────────────────

// RecordStepObservation converts the unseen step delta since the last
// observation into Walking-balance StepCoins at the fixed exchange rate.
//
// A non-positive delta (clock reset, source backfill, device swap) is treated
// as no new steps: nothing mutates. The per-observation remainder below the
// exchange rate is discarded, not carried forward.
func (s *Service) RecordStepObservation(ctx context.Context, userID string, cumulativeSteps int64) (domain.AccrualResult, error) {
	if cumulativeSteps < 0 {
		return domain.AccrualResult{}, fmt.Errorf("%w: negative step count %d", domain.ErrInvalidInput, cumulativeSteps)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadOrInit(ctx, userID)
	if err != nil {
		return domain.AccrualResult{}, err
	}

	delta := cumulativeSteps - state.LastObservedSteps
	if delta <= 0 {
		return domain.AccrualResult{Earned: 0, NewWalkingBalance: state.WalkingBalance}, nil
	}

	earned := delta / domain.ExchangeRate
	state.LastObservedSteps = cumulativeSteps
	state.TotalLifetimeSteps += delta

	var entries []domain.HistoryEntry
	if earned > 0 {
		state.WalkingBalance += earned
		entries = append(entries, domain.HistoryEntry{
			UserID:      userID,
			At:          s.now(),
			Amount:      earned,
			Source:      domain.SourceWalking,
			Description: fmt.Sprintf("%d steps", delta),
		})
	}

	if err := s.store.SaveLedgerState(ctx, state, entries); err != nil {
		return domain.AccrualResult{}, fmt.Errorf("persist accrual: %w", err)
	}

	observability.AccrualsTotal.Inc()
	observability.StepDelta.Observe(float64(delta))
	if earned > 0 {
		observability.CoinsEarnedTotal.WithLabelValues(string(domain.SourceWalking)).Add(float64(earned))
	}

	return domain.AccrualResult{Earned: earned, NewWalkingBalance: state.WalkingBalance}, nil
}

// ResetBaseline re-baselines the last observed cumulative step count.
// This is the only path allowed to lower it (reinstall, device swap) and is
// operator-initiated; it never converts the decrease into currency.
func (s *Service) ResetBaseline(ctx context.Context, userID string, cumulativeSteps int64) error {
	if cumulativeSteps < 0 {
		return fmt.Errorf("%w: negative step count %d", domain.ErrInvalidInput, cumulativeSteps)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadOrInit(ctx, userID)
	if err != nil {
		return err
	}
	state.LastObservedSteps = cumulativeSteps
	return s.store.SaveLedgerState(ctx, state, nil)
}

// ─── Daily Bonus ────────────────────────────────────────────────────────────

// ClaimDailyBonus grants the once-per-calendar-day meditation bonus.
// The reward is sessionMinutes × 10 coins for the allowed durations.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID string, sessionMinutes int) (domain.BonusResult, error) {
	reward := domain.BonusReward(sessionMinutes)
	if reward == 0 {
		observability.BonusClaimsTotal.WithLabelValues("invalid").Inc()
		return domain.BonusResult{}, fmt.Errorf("%w: session duration %d not in allowed set", domain.ErrInvalidInput, sessionMinutes)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadOrInit(ctx, userID)
	if err != nil {
		return domain.BonusResult{}, err
	}

	today := domain.DateOf(s.now())
	if state.LastBonusDate == today {
		observability.BonusClaimsTotal.WithLabelValues("duplicate").Inc()
		return domain.BonusResult{}, domain.ErrAlreadyClaimedToday
	}

	state.MeditationBalance += reward
	state.LastBonusDate = today
	entry := domain.HistoryEntry{
		UserID:      userID,
		At:          s.now(),
		Amount:      reward,
		Source:      domain.SourceMeditation,
		Description: fmt.Sprintf("%d minute meditation", sessionMinutes),
	}

	if err := s.store.SaveLedgerState(ctx, state, []domain.HistoryEntry{entry}); err != nil {
		return domain.BonusResult{}, fmt.Errorf("persist bonus: %w", err)
	}

	observability.BonusClaimsTotal.WithLabelValues("granted").Inc()
	observability.CoinsEarnedTotal.WithLabelValues(string(domain.SourceMeditation)).Add(float64(reward))

	return domain.BonusResult{Earned: reward, NewBonusBalance: state.MeditationBalance}, nil
}

// ─── Redemption ─────────────────────────────────────────────────────────────

// Redeem spends the combined balance on a catalog item. Deduction order is
// fixed: meditation balance first, then walking. Neither balance goes
// negative. Exactly one receipt is emitted per successful redemption.
func (s *Service) Redeem(ctx context.Context, userID, itemName string) (domain.RedemptionResult, error) {
	item := s.catalog.Lookup(itemName)
	if item == nil {
		observability.RedemptionsTotal.WithLabelValues("unknown_item").Inc()
		return domain.RedemptionResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownItem, itemName)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.loadOrInit(ctx, userID)
	if err != nil {
		return domain.RedemptionResult{}, err
	}

	if state.CombinedBalance() < item.Cost {
		observability.RedemptionsTotal.WithLabelValues("insufficient_funds").Inc()
		return domain.RedemptionResult{}, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientFunds, state.CombinedBalance(), item.Cost)
	}

	fromMeditation := min64(state.MeditationBalance, item.Cost)
	fromWalking := item.Cost - fromMeditation
	state.MeditationBalance -= fromMeditation
	state.WalkingBalance -= fromWalking

	source := domain.SourceMixed
	switch {
	case fromWalking == 0:
		source = domain.SourceMeditation
	case fromMeditation == 0:
		source = domain.SourceWalking
	}

	entry := domain.HistoryEntry{
		UserID:      userID,
		At:          s.now(),
		Amount:      -item.Cost,
		Source:      source,
		Description: item.Name,
	}

	if err := s.store.SaveLedgerState(ctx, state, []domain.HistoryEntry{entry}); err != nil {
		return domain.RedemptionResult{}, fmt.Errorf("persist redemption: %w", err)
	}

	receipt := domain.RedemptionReceipt{
		ID:       uuid.NewString(),
		UserID:   userID,
		ItemName: item.Name,
		Cost:     item.Cost,
		At:       s.now(),
	}
	// The balance change is already committed; a receipt write failure is
	// logged at the store level but must not unwind the redemption.
	receiptIssued := s.store.InsertReceipt(ctx, receipt) == nil
	if s.receipts != nil {
		s.receipts.EmitReceipt(ctx, receipt)
	}

	observability.RedemptionsTotal.WithLabelValues("ok").Inc()
	observability.CoinsSpentTotal.Add(float64(item.Cost))

	return domain.RedemptionResult{RemainingBalance: state.CombinedBalance(), ReceiptIssued: receiptIssued}, nil
}

// ─── Read Operations ────────────────────────────────────────────────────────

// State returns the user's current ledger state, zero-valued if never
// observed. Read-only; no lock needed beyond store consistency.
func (s *Service) State(ctx context.Context, userID string) (domain.LedgerState, error) {
	return s.loadOrInit(ctx, userID)
}

// History returns the full append-only history. Oldest first by default;
// reversed=true yields newest first, which is what the UI displays.
func (s *Service) History(ctx context.Context, userID string, reversed bool) ([]domain.HistoryEntry, error) {
	entries, err := s.store.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reversed {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// Receipts returns the user's redemption receipts, oldest first.
func (s *Service) Receipts(ctx context.Context, userID string) ([]domain.RedemptionReceipt, error) {
	return s.store.ListReceipts(ctx, userID)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
