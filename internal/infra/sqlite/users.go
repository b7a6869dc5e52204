package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// ─── User Operations ────────────────────────────────────────────────────────

// InsertUser creates an account row. Fails on duplicate email or username.
func (db *DB) InsertUser(ctx context.Context, u domain.User, verifyToken string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, first_name, last_name, password_hash, verified, verify_token, daily_goal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Username, u.FirstName, u.LastName, u.PasswordHash,
		boolToInt(u.Verified), verifyToken, domain.DefaultDailyGoal, u.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetUserByEmail retrieves an account by email, or nil if absent.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return db.getUser(ctx, `email = ?`, email)
}

// GetUser retrieves an account by ID, or nil if absent.
func (db *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return db.getUser(ctx, `id = ?`, id)
}

// GetUserByUsername retrieves an account by username, or nil if absent.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return db.getUser(ctx, `username = ?`, username)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var u domain.User
	var verified int
	var created string
	err := db.db.QueryRowContext(ctx, `
		SELECT id, email, username, first_name, last_name, password_hash, verified, created_at
		FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.PasswordHash, &verified, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	u.Verified = verified == 1
	u.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &u, nil
}

// VerifyUser marks the account verified if the token matches.
// Returns false when no account carries the token.
func (db *DB) VerifyUser(ctx context.Context, token string) (bool, error) {
	res, err := db.db.ExecContext(ctx, `
		UPDATE users SET verified = 1, verify_token = NULL WHERE verify_token = ?
	`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdatePassword replaces the stored password hash.
func (db *DB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ? WHERE id = ?
	`, passwordHash, userID)
	return err
}

// UpdateProfile updates the editable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, userID, firstName, lastName string, dailyGoal int64) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, daily_goal = ? WHERE id = ?
	`, firstName, lastName, dailyGoal, userID)
	return err
}

// DailyGoal returns the user's configured step goal.
func (db *DB) DailyGoal(ctx context.Context, userID string) (int64, error) {
	var goal int64
	err := db.db.QueryRowContext(ctx, `SELECT daily_goal FROM users WHERE id = ?`, userID).Scan(&goal)
	if err == sql.ErrNoRows {
		return domain.DefaultDailyGoal, nil
	}
	return goal, err
}

// DeleteUser removes the account row. Ledger cleanup is separate
// (DeleteLedger) so the caller controls ordering.
func (db *DB) DeleteUser(ctx context.Context, userID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_steps WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM friends WHERE user_id = ? OR friend_id = ?`, userID, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM friend_requests WHERE from_user = ? OR to_user = ?`, userID, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return tx.Commit()
}

// SearchUsers returns users whose username starts with the prefix.
func (db *DB) SearchUsers(ctx context.Context, prefix string, limit int) ([]domain.Friend, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT u.id, u.username, COALESCE(d.steps, 0)
		FROM users u
		LEFT JOIN daily_steps d ON d.user_id = u.id AND d.date = date('now')
		WHERE u.username LIKE ? ORDER BY u.username LIMIT ?
	`, prefix+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friend
	for rows.Next() {
		var f domain.Friend
		if err := rows.Scan(&f.UserID, &f.Username, &f.DailySteps); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ─── Daily Step Operations ──────────────────────────────────────────────────

// UpsertDailySteps records the step count for a user on a calendar date.
func (db *DB) UpsertDailySteps(ctx context.Context, userID, date string, steps int64) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO daily_steps (user_id, date, steps)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET steps = excluded.steps
	`, userID, date, steps)
	return err
}

// DailySteps returns the recorded steps for a user on a date (0 if none).
func (db *DB) DailySteps(ctx context.Context, userID, date string) (int64, error) {
	var steps int64
	err := db.db.QueryRowContext(ctx, `
		SELECT steps FROM daily_steps WHERE user_id = ? AND date = ?
	`, userID, date).Scan(&steps)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return steps, err
}

// ─── Friend Operations ──────────────────────────────────────────────────────

// InsertFriendRequest records a pending request. A prior request between
// the same pair (e.g. one that was declined) is replaced so the sender can
// try again.
func (db *DB) InsertFriendRequest(ctx context.Context, r domain.FriendRequest) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO friend_requests (id, from_user, to_user, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_user, to_user) DO UPDATE SET
			id = excluded.id, status = excluded.status, created_at = excluded.created_at
	`, r.ID, r.From, r.To, string(r.Status), r.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// GetFriendRequest retrieves a request by ID, or nil if absent.
func (db *DB) GetFriendRequest(ctx context.Context, id string) (*domain.FriendRequest, error) {
	var r domain.FriendRequest
	var status, created string
	err := db.db.QueryRowContext(ctx, `
		SELECT id, from_user, to_user, status, created_at FROM friend_requests WHERE id = ?
	`, id).Scan(&r.ID, &r.From, &r.To, &status, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Status = domain.RequestStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &r, nil
}

// UpdateFriendRequestStatus transitions a request; accepting also links both
// users as friends in the same transaction.
func (db *DB) UpdateFriendRequestStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var from, to string
	err = tx.QueryRowContext(ctx, `SELECT from_user, to_user FROM friend_requests WHERE id = ?`, id).Scan(&from, &to)
	if err == sql.ErrNoRows {
		return domain.ErrRequestNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE friend_requests SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return err
	}

	if status == domain.RequestAccepted {
		for _, pair := range [][2]string{{from, to}, {to, from}} {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)
			`, pair[0], pair[1]); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// PendingRequests returns requests awaiting the user's response.
func (db *DB) PendingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, from_user, to_user, status, created_at
		FROM friend_requests WHERE to_user = ? AND status = 'pending' ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FriendRequest
	for rows.Next() {
		var r domain.FriendRequest
		var status, created string
		if err := rows.Scan(&r.ID, &r.From, &r.To, &status, &created); err != nil {
			return nil, err
		}
		r.Status = domain.RequestStatus(status)
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AreFriends reports whether a friendship link exists.
func (db *DB) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?
	`, userID, friendID).Scan(&count)
	return count > 0, err
}

// ListFriends returns the user's friends with today's step counts.
func (db *DB) ListFriends(ctx context.Context, userID string) ([]domain.Friend, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT u.id, u.username, COALESCE(d.steps, 0)
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		LEFT JOIN daily_steps d ON d.user_id = u.id AND d.date = date('now')
		WHERE f.user_id = ? ORDER BY u.username
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friend
	for rows.Next() {
		var f domain.Friend
		if err := rows.Scan(&f.UserID, &f.Username, &f.DailySteps); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
