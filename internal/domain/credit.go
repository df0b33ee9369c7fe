package domain

import "time"

// ─── Credit Ledger Types ────────────────────────────────────────────────────
// The ledger is the append-only sequence of rows that justifies every user
// balance. Rows are immutable once written.

// TransactionType is the business reason for a credit movement. A closed
// enum so typos cannot fragment audit queries.
type TransactionType string

const (
	TxExchangeComplete TransactionType = "ExchangeComplete"
	TxAdminAdjustment  TransactionType = "AdminAdjustment"
	TxSignupBonus      TransactionType = "SignupBonus"
)

// CreditTransaction is a single ledger row. Amount is signed: positive for
// a credit, negative for a debit. BalanceAfter snapshots the affected
// user's balance after applying Amount, so history reads never need replay.
type CreditTransaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Amount          int64           `json:"amount"`
	BalanceAfter    int64           `json:"balance_after"`
	TransactionType TransactionType `json:"transaction_type"`
	Reason          string          `json:"reason"`
	RelatedUserID   *int64          `json:"related_user_id,omitempty"` // counterparty in a transfer
	ExchangeID      *int64          `json:"exchange_id,omitempty"`     // correlation for exchange payments
	CreatedAt       time.Time       `json:"created_at"`
}

// SignupBonusCredits is granted to every new user so they can book their
// first lessons before teaching any.
const SignupBonusCredits = 5
