package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── Credit Ledger Operations ───────────────────────────────────────────────
// applyDeltaInTx is the single code path that changes a user balance, and
// every caller pairs it with a ledger insert in the same transaction. That
// is what keeps balances explainable: one ledger row per change, two for a
// transfer.

// applyDeltaInTx reads the balance under the transaction's write lock,
// applies the signed delta, and returns the new balance. A negative result
// is ErrInsufficientCredits and aborts the unit.
func applyDeltaInTx(tx *sql.Tx, userID, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRow(`SELECT time_credits FROM users WHERE id = ?`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock user %d: %w", userID, err)
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, domain.ErrInsufficientCredits
	}

	if _, err := tx.Exec(
		`UPDATE users SET time_credits = ?, updated_at = ? WHERE id = ?`,
		newBalance, unix(now), userID,
	); err != nil {
		return 0, fmt.Errorf("update balance for user %d: %w", userID, err)
	}
	return newBalance, nil
}

// insertLedgerRowInTx appends one immutable ledger row.
func insertLedgerRowInTx(tx *sql.Tx, row domain.CreditTransaction) error {
	_, err := tx.Exec(`
		INSERT INTO credit_transactions
			(user_id, amount, balance_after, transaction_type, reason, related_user_id, exchange_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.UserID, row.Amount, row.BalanceAfter, string(row.TransactionType),
		row.Reason, row.RelatedUserID, row.ExchangeID, unix(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

// transferInTx moves amount from payer to payee and writes the paired
// ledger rows. Preconditions (amount > 0, distinct users) are the credit
// engine's job; this helper only guarantees the atomic effect.
func transferInTx(tx *sql.Tx, fromUserID, toUserID, amount int64, txType domain.TransactionType, reason string, exchangeID *int64, now time.Time) error {
	fromBalance, err := applyDeltaInTx(tx, fromUserID, -amount, now)
	if err != nil {
		return err
	}
	toBalance, err := applyDeltaInTx(tx, toUserID, amount, now)
	if err != nil {
		return err
	}

	if err := insertLedgerRowInTx(tx, domain.CreditTransaction{
		UserID:          fromUserID,
		Amount:          -amount,
		BalanceAfter:    fromBalance,
		TransactionType: txType,
		Reason:          reason,
		RelatedUserID:   &toUserID,
		ExchangeID:      exchangeID,
		CreatedAt:       now,
	}); err != nil {
		return err
	}
	return insertLedgerRowInTx(tx, domain.CreditTransaction{
		UserID:          toUserID,
		Amount:          amount,
		BalanceAfter:    toBalance,
		TransactionType: txType,
		Reason:          reason,
		RelatedUserID:   &fromUserID,
		ExchangeID:      exchangeID,
		CreatedAt:       now,
	})
}

// Transfer atomically moves amount between two balances and appends the
// paired ledger rows. On any failure nothing is observable.
func (db *DB) Transfer(ctx context.Context, fromUserID, toUserID, amount int64, txType domain.TransactionType, reason string, exchangeID *int64, now time.Time) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := transferInTx(tx, fromUserID, toUserID, amount, txType, reason, exchangeID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// ApplyAdjustment atomically applies a signed single-party balance change
// with its ledger row. delta > 0 credits the user, delta < 0 debits.
func (db *DB) ApplyAdjustment(ctx context.Context, userID, delta int64, txType domain.TransactionType, reason string, now time.Time) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := applyDeltaInTx(tx, userID, delta, now)
	if err != nil {
		return err
	}
	if err := insertLedgerRowInTx(tx, domain.CreditTransaction{
		UserID:          userID,
		Amount:          delta,
		BalanceAfter:    balance,
		TransactionType: txType,
		Reason:          reason,
		CreatedAt:       now,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit adjustment: %w", err)
	}
	return nil
}

// History returns the user's ledger rows, most recent first, bounded by
// limit. Reads run outside any transaction; they are for display.
func (db *DB) History(ctx context.Context, userID int64, limit int) ([]domain.CreditTransaction, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, amount, balance_after, transaction_type, reason,
		       related_user_id, exchange_id, created_at
		FROM credit_transactions
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var result []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		var txType string
		var related, exchange sql.NullInt64
		var created int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &txType,
			&t.Reason, &related, &exchange, &created); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		t.TransactionType = domain.TransactionType(txType)
		if related.Valid {
			v := related.Int64
			t.RelatedUserID = &v
		}
		if exchange.Valid {
			v := exchange.Int64
			t.ExchangeID = &v
		}
		t.CreatedAt = fromUnix(created)
		result = append(result, t)
	}
	return result, rows.Err()
}

// LedgerRowsForExchange returns all ledger rows correlated with an
// exchange, oldest first. Used by tests and audit tooling.
func (db *DB) LedgerRowsForExchange(ctx context.Context, exchangeID int64) ([]domain.CreditTransaction, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, user_id, amount, balance_after, transaction_type, reason,
		       related_user_id, exchange_id, created_at
		FROM credit_transactions
		WHERE exchange_id = ?
		ORDER BY id ASC
	`, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("query exchange ledger: %w", err)
	}
	defer rows.Close()

	var result []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		var txType string
		var related, exchange sql.NullInt64
		var created int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &txType,
			&t.Reason, &related, &exchange, &created); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		t.TransactionType = domain.TransactionType(txType)
		if related.Valid {
			v := related.Int64
			t.RelatedUserID = &v
		}
		if exchange.Valid {
			v := exchange.Int64
			t.ExchangeID = &v
		}
		t.CreatedAt = fromUnix(created)
		result = append(result, t)
	}
	return result, rows.Err()
}
