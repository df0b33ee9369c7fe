// Package credit is the time-credit transfer engine. Every balance change on
// the platform flows through here:
//
//  1. Peer transfers when an exchange completes (paired debit/credit rows)
//  2. Admin adjustments (signed single-party corrections)
//  3. The one-time signup bonus for new users
//
// The engine validates, then delegates to the store's atomic transfer so
// that a balance never changes without its ledger row.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillforge-network/skillforge/internal/domain"
	"github.com/skillforge-network/skillforge/internal/infra/observability"
	"github.com/skillforge-network/skillforge/internal/infra/sqlite"
)

// Engine moves time-credits between users.
type Engine struct {
	db       *sqlite.DB
	notifier domain.NotificationDispatcher
	logger   zerolog.Logger

	// Now is the clock; tests override it.
	Now func() time.Time
}

// New creates a credit engine. notifier may be nil.
func New(db *sqlite.DB, notifier domain.NotificationDispatcher, logger zerolog.Logger) *Engine {
	return &Engine{
		db:       db,
		notifier: notifier,
		logger:   logger.With().Str("component", "credit").Logger(),
		Now:      time.Now,
	}
}

// Transfer moves amount credits from one user to another. Amount must be
// positive and the parties distinct; the debit fails with
// ErrInsufficientCredits when the payer's balance cannot cover it, in which
// case nothing is persisted.
func (e *Engine) Transfer(ctx context.Context, fromUserID, toUserID, amount int64, txType domain.TransactionType, reason string, exchangeID *int64) error {
	if amount <= 0 {
		observability.TransferFailuresTotal.WithLabelValues("invalid_amount").Inc()
		return domain.ErrInvalidAmount
	}
	if fromUserID == toUserID {
		observability.TransferFailuresTotal.WithLabelValues("self_transfer").Inc()
		return domain.ErrSelfTransfer
	}

	if err := e.db.Transfer(ctx, fromUserID, toUserID, amount, txType, reason, exchangeID, e.Now()); err != nil {
		observability.TransferFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return err
	}

	observability.TransfersTotal.WithLabelValues(string(txType)).Inc()
	observability.CreditsMoved.Add(float64(amount))
	e.logger.Info().
		Int64("from_user_id", fromUserID).
		Int64("to_user_id", toUserID).
		Int64("amount", amount).
		Str("type", string(txType)).
		Msg("Credits transferred")

	if e.notifier != nil {
		e.notifier.CreditTransferred(fromUserID, -amount, reason)
		e.notifier.CreditTransferred(toUserID, amount, reason)
	}
	return nil
}

// Grant adds credits to a single user as an admin adjustment.
func (e *Engine) Grant(ctx context.Context, userID, amount int64, reason string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return e.adjust(ctx, userID, amount, domain.TxAdminAdjustment, reason)
}

// Deduct removes credits from a single user as an admin adjustment. The
// deduction fails with ErrInsufficientCredits rather than driving the
// balance negative.
func (e *Engine) Deduct(ctx context.Context, userID, amount int64, reason string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return e.adjust(ctx, userID, -amount, domain.TxAdminAdjustment, reason)
}

// SignupBonus seeds a brand-new account with its starting balance.
func (e *Engine) SignupBonus(ctx context.Context, userID int64) error {
	return e.adjust(ctx, userID, domain.SignupBonusCredits, domain.TxSignupBonus, "Welcome bonus for joining SkillForge")
}

func (e *Engine) adjust(ctx context.Context, userID, delta int64, txType domain.TransactionType, reason string) error {
	if err := e.db.ApplyAdjustment(ctx, userID, delta, txType, reason, e.Now()); err != nil {
		observability.TransferFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		return err
	}

	observability.TransfersTotal.WithLabelValues(string(txType)).Inc()
	if delta > 0 {
		observability.CreditsMoved.Add(float64(delta))
	} else {
		observability.CreditsMoved.Add(float64(-delta))
	}
	e.logger.Info().
		Int64("user_id", userID).
		Int64("delta", delta).
		Str("type", string(txType)).
		Msg("Balance adjusted")

	if e.notifier != nil {
		e.notifier.CreditTransferred(userID, delta, reason)
	}
	return nil
}

// Balance returns the user's current balance.
func (e *Engine) Balance(ctx context.Context, userID int64) (int64, error) {
	return e.db.UserBalance(ctx, userID)
}

// History returns the user's ledger rows, newest first, capped at limit.
func (e *Engine) History(ctx context.Context, userID int64, limit int) ([]domain.CreditTransaction, error) {
	return e.db.History(ctx, userID, limit)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	}
	return "storage"
}
