package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/skillforge-network/skillforge/internal/domain"
)

func TestTransfer_BalanceConservation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payer := seedUser(t, db, "payer@example.com", 5)
	payee := seedUser(t, db, "payee@example.com", 3)

	err := db.Transfer(ctx, payer, payee, 2, domain.TxExchangeComplete, "lesson", nil, testNow)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	payerBal, _ := db.UserBalance(ctx, payer)
	payeeBal, _ := db.UserBalance(ctx, payee)
	if payerBal != 3 {
		t.Errorf("payer balance = %d, want 3", payerBal)
	}
	if payeeBal != 5 {
		t.Errorf("payee balance = %d, want 5", payeeBal)
	}
	if payerBal+payeeBal != 8 {
		t.Errorf("total = %d, want 8 (conservation)", payerBal+payeeBal)
	}
}

func TestTransfer_LedgerPairing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payer := seedUser(t, db, "payer@example.com", 5)
	payee := seedUser(t, db, "payee@example.com", 0)
	exchangeID := int64(42)

	if err := db.Transfer(ctx, payer, payee, 3, domain.TxExchangeComplete, "lesson", &exchangeID, testNow); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	rows, err := db.LedgerRowsForExchange(ctx, exchangeID)
	if err != nil {
		t.Fatalf("ledger rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d ledger rows, want 2", len(rows))
	}

	debit, credit := rows[0], rows[1]
	if debit.UserID != payer || debit.Amount != -3 || debit.BalanceAfter != 2 {
		t.Errorf("debit row = user %d amount %d after %d", debit.UserID, debit.Amount, debit.BalanceAfter)
	}
	if credit.UserID != payee || credit.Amount != 3 || credit.BalanceAfter != 3 {
		t.Errorf("credit row = user %d amount %d after %d", credit.UserID, credit.Amount, credit.BalanceAfter)
	}
	if debit.RelatedUserID == nil || *debit.RelatedUserID != payee {
		t.Error("debit row should reference payee as counterparty")
	}
	if credit.RelatedUserID == nil || *credit.RelatedUserID != payer {
		t.Error("credit row should reference payer as counterparty")
	}
	if debit.ExchangeID == nil || *debit.ExchangeID != exchangeID {
		t.Error("debit row should carry the exchange id")
	}
}

func TestTransfer_InsufficientRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payer := seedUser(t, db, "payer@example.com", 1)
	payee := seedUser(t, db, "payee@example.com", 0)

	err := db.Transfer(ctx, payer, payee, 2, domain.TxExchangeComplete, "lesson", nil, testNow)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}

	// Nothing observable: balances untouched, no ledger rows beyond funding.
	payerBal, _ := db.UserBalance(ctx, payer)
	if payerBal != 1 {
		t.Errorf("payer balance = %d, want 1", payerBal)
	}
	history, _ := db.History(ctx, payee, 10)
	if len(history) != 0 {
		t.Errorf("payee history has %d rows, want 0", len(history))
	}
}

func TestTransfer_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	payer := seedUser(t, db, "payer@example.com", 5)

	err := db.Transfer(ctx, payer, 999, 1, domain.TxExchangeComplete, "lesson", nil, testNow)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	// Payer debit must have rolled back.
	bal, _ := db.UserBalance(ctx, payer)
	if bal != 5 {
		t.Errorf("payer balance = %d, want 5 after rollback", bal)
	}
}

func TestApplyAdjustment_DebitBelowZero(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "user@example.com", 2)

	err := db.ApplyAdjustment(ctx, user, -3, domain.TxAdminAdjustment, "penalty", testNow)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
}

func TestHistory_NewestFirstBounded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "user@example.com", 0)

	for i := 0; i < 5; i++ {
		if err := db.ApplyAdjustment(ctx, user, 1, domain.TxAdminAdjustment, "grant", testNow); err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}

	history, err := db.History(ctx, user, 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d rows, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].ID > history[i-1].ID {
			t.Error("history should be newest first")
		}
	}
	if history[0].BalanceAfter != 5 {
		t.Errorf("latest balance_after = %d, want 5", history[0].BalanceAfter)
	}
}

func TestUserBalance_MissingUser(t *testing.T) {
	db := newTestDB(t)
	_, err := db.UserBalance(context.Background(), 12345)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
