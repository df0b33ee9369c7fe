package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedUser creates a user and, when credits > 0, funds it through the
// ledger so the balance stays explainable.
func seedUser(t *testing.T, db *DB, email string, credits int64) int64 {
	t.Helper()
	id, err := db.CreateUser(context.Background(), email, email, testNow)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	if credits > 0 {
		if err := db.ApplyAdjustment(context.Background(), id, credits, domain.TxSignupBonus, "signup bonus", testNow); err != nil {
			t.Fatalf("fund user %s: %v", email, err)
		}
	}
	return id
}

func TestMigrations_TablesExist(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"users", "skills", "user_skills", "exchanges", "credit_transactions"}
	for _, tbl := range tables {
		t.Run(tbl, func(t *testing.T) {
			var name string
			err := db.db.QueryRow(
				`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl,
			).Scan(&name)
			if err != nil {
				t.Fatalf("table %s not found: %v", tbl, err)
			}
		})
	}
}

func TestCreateUser_StartsAtZero(t *testing.T) {
	db := newTestDB(t)
	id := seedUser(t, db, "zero@example.com", 0)

	balance, err := db.UserBalance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}
