package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── User Operations ────────────────────────────────────────────────────────

// CreateUser inserts a user with a zero balance. Credits arrive only
// through ledger writes, so even the signup bonus leaves a row.
func (db *DB) CreateUser(ctx context.Context, email, name string, now time.Time) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO users (email, name, time_credits, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
	`, email, name, unix(now), unix(now))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// GetUser retrieves a user by id.
func (db *DB) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	var created, updated int64
	err := db.db.QueryRowContext(ctx, `
		SELECT id, email, name, time_credits, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Email, &u.Name, &u.TimeCredits, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = fromUnix(created), fromUnix(updated)
	return &u, nil
}

// UserBalance returns the user's current time-credit balance. A missing
// user is ErrUserNotFound, never a zero balance.
func (db *DB) UserBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := db.db.QueryRowContext(ctx,
		`SELECT time_credits FROM users WHERE id = ?`, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}
