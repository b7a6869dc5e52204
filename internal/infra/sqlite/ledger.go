package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// ─── Ledger State Operations ────────────────────────────────────────────────

// LoadLedgerState returns the ledger state for a user, or nil if the user has
// never been observed.
func (db *DB) LoadLedgerState(ctx context.Context, userID string) (*domain.LedgerState, error) {
	var s domain.LedgerState
	var bonusDate sql.NullString
	err := db.db.QueryRowContext(ctx, `
		SELECT user_id, last_observed_steps, walking_balance, meditation_balance, last_bonus_date, total_lifetime_steps
		FROM ledger_state WHERE user_id = ?
	`, userID).Scan(&s.UserID, &s.LastObservedSteps, &s.WalkingBalance, &s.MeditationBalance, &bonusDate, &s.TotalLifetimeSteps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	if bonusDate.Valid {
		s.LastBonusDate = bonusDate.String
	}
	return &s, nil
}

// SaveLedgerState persists the state and appends newEntries as a single
// transaction. Either everything commits or nothing does — balances and
// history never drift apart.
func (db *DB) SaveLedgerState(ctx context.Context, state domain.LedgerState, newEntries []domain.HistoryEntry) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var bonusDate any
	if state.LastBonusDate != "" {
		bonusDate = state.LastBonusDate
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_state (user_id, last_observed_steps, walking_balance, meditation_balance, last_bonus_date, total_lifetime_steps, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			last_observed_steps  = excluded.last_observed_steps,
			walking_balance      = excluded.walking_balance,
			meditation_balance   = excluded.meditation_balance,
			last_bonus_date      = excluded.last_bonus_date,
			total_lifetime_steps = excluded.total_lifetime_steps,
			updated_at           = datetime('now')
	`, state.UserID, state.LastObservedSteps, state.WalkingBalance, state.MeditationBalance, bonusDate, state.TotalLifetimeSteps)
	if err != nil {
		return fmt.Errorf("save ledger state: %w", err)
	}

	for _, e := range newEntries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_history (user_id, at, amount, source, description)
			VALUES (?, ?, ?, ?, ?)
		`, e.UserID, e.At.UTC().Format(time.RFC3339), e.Amount, string(e.Source), e.Description)
		if err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// History returns the full append-only history for a user in insertion order
// (oldest first).
func (db *DB) History(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, at, amount, source, description
		FROM ledger_history WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var at, source string
		if err := rows.Scan(&e.ID, &e.UserID, &at, &e.Amount, &source, &e.Description); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339, at)
		e.Source = domain.Source(source)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteLedger removes a user's ledger state and history.
// Account-deletion flow only; normal operation never deletes history.
func (db *DB) DeleteLedger(ctx context.Context, userID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM ledger_state WHERE user_id = ?`,
		`DELETE FROM ledger_history WHERE user_id = ?`,
		`DELETE FROM redemption_receipts WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("delete ledger: %w", err)
		}
	}
	return tx.Commit()
}

// ─── Receipt Operations ─────────────────────────────────────────────────────

// InsertReceipt records a redemption receipt.
func (db *DB) InsertReceipt(ctx context.Context, r domain.RedemptionReceipt) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO redemption_receipts (id, user_id, item_name, cost, at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.ItemName, r.Cost, r.At.UTC().Format(time.RFC3339))
	return err
}

// ListReceipts returns a user's receipts, oldest first.
func (db *DB) ListReceipts(ctx context.Context, userID string) ([]domain.RedemptionReceipt, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, item_name, cost, at
		FROM redemption_receipts WHERE user_id = ? ORDER BY at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []domain.RedemptionReceipt
	for rows.Next() {
		var r domain.RedemptionReceipt
		var at string
		if err := rows.Scan(&r.ID, &r.UserID, &r.ItemName, &r.Cost, &at); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339, at)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
