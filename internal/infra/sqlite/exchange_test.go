package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skillforge-network/skillforge/internal/domain"
)

func seedExchange(t *testing.T, db *DB, offerer, learner int64, status domain.ExchangeStatus, scheduledAt time.Time, duration float64) int64 {
	t.Helper()
	id, err := db.InsertExchange(context.Background(), &domain.Exchange{
		OffererID:   offerer,
		LearnerID:   learner,
		SkillID:     1,
		ScheduledAt: scheduledAt,
		Duration:    duration,
		Status:      status,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	})
	if err != nil {
		t.Fatalf("insert exchange: %v", err)
	}
	return id
}

func TestTransitionExchange_Guarded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	id := seedExchange(t, db, offerer, learner, domain.StatusPending, testNow.Add(24*time.Hour), 1.0)

	if err := db.TransitionExchange(ctx, id, domain.StatusPending, domain.StatusAccepted, nil, testNow); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Second accept loses the guard and reports the fresh status.
	err := db.TransitionExchange(ctx, id, domain.StatusPending, domain.StatusAccepted, nil, testNow)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	var te *domain.TransitionError
	if !errors.As(err, &te) {
		t.Fatal("expected *domain.TransitionError")
	}
	if te.From != domain.StatusAccepted {
		t.Errorf("stale error From = %s, want Accepted", te.From)
	}
}

func TestTransitionExchange_NotesOverwriteOnlyWhenProvided(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	id := seedExchange(t, db, offerer, learner, domain.StatusPending, testNow.Add(24*time.Hour), 1.0)

	notes := "see you at 2pm"
	if err := db.TransitionExchange(ctx, id, domain.StatusPending, domain.StatusAccepted, &notes, testNow); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := db.TransitionExchange(ctx, id, domain.StatusAccepted, domain.StatusCancelled, nil, testNow); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ex, err := db.GetExchange(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ex.Notes != "see you at 2pm" {
		t.Errorf("notes = %q, want preserved text", ex.Notes)
	}
	if ex.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want Cancelled", ex.Status)
	}
}

func TestCompleteExchangeAndTransfer_OneUnit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 2)
	id := seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-2*time.Hour), 1.0)

	err := db.CompleteExchangeAndTransfer(ctx, id, learner, offerer, 1, "Completed exchange for skill: Go", "", testNow)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	ex, _ := db.GetExchange(ctx, id)
	if ex.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want Completed", ex.Status)
	}
	learnerBal, _ := db.UserBalance(ctx, learner)
	offererBal, _ := db.UserBalance(ctx, offerer)
	if learnerBal != 1 || offererBal != 1 {
		t.Errorf("balances = %d/%d, want 1/1", learnerBal, offererBal)
	}
	rows, _ := db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 2 {
		t.Errorf("ledger rows = %d, want 2", len(rows))
	}
}

func TestCompleteExchangeAndTransfer_InsufficientRollsBackStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	id := seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-2*time.Hour), 1.0)

	err := db.CompleteExchangeAndTransfer(ctx, id, learner, offerer, 1, "lesson", "", testNow)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}

	// The status write was in the same unit as the failed transfer.
	ex, _ := db.GetExchange(ctx, id)
	if ex.Status != domain.StatusAccepted {
		t.Errorf("status = %s, want Accepted after rollback", ex.Status)
	}
	rows, _ := db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(rows))
	}
}

func TestCompleteExchangeAndTransfer_NoDoublePayment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 10)
	id := seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-2*time.Hour), 1.0)

	// Two concurrent completions: a user click racing the sweeper.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.CompleteExchangeAndTransfer(ctx, id, learner, offerer, 1, "lesson", "", testNow)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrInvalidTransition):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won=%d lost=%d, want exactly one winner", won, lost)
	}

	rows, _ := db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 2 {
		t.Errorf("ledger rows = %d, want exactly one pair", len(rows))
	}
	learnerBal, _ := db.UserBalance(ctx, learner)
	if learnerBal != 9 {
		t.Errorf("learner balance = %d, want 9 (paid once)", learnerBal)
	}
}

func TestMarkNoShowAuto_AppendsNote(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	id := seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-5*time.Hour), 1.0)

	if err := db.MarkNoShowAuto(ctx, id, "[Auto-completed] Learner had insufficient credits (0/1)", testNow); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	ex, _ := db.GetExchange(ctx, id)
	if ex.Status != domain.StatusNoShow {
		t.Errorf("status = %s, want NoShow", ex.Status)
	}
	if ex.Notes == "" {
		t.Error("audit note should be recorded")
	}
	rows, _ := db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 0 {
		t.Errorf("no-show must not move credits, got %d rows", len(rows))
	}
}

func TestOverdueAccepted_SelectsOnlyPastGrace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	grace := 2 * time.Hour

	// Ended 4h ago with 1h duration: past grace.
	overdue := seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-5*time.Hour), 1.0)
	// Ended 1h ago: inside grace.
	seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(-2*time.Hour), 1.0)
	// Past grace but still pending: never swept.
	seedExchange(t, db, offerer, learner, domain.StatusPending, testNow.Add(-10*time.Hour), 1.0)
	// Future session.
	seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(24*time.Hour), 1.0)

	got, err := db.OverdueAccepted(ctx, grace, 50, testNow)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].ID != overdue {
		t.Errorf("candidate id = %d, want %d", got[0].ID, overdue)
	}
}

func TestOverdueAccepted_BatchCap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)

	for i := 0; i < 5; i++ {
		seedExchange(t, db, offerer, learner, domain.StatusAccepted,
			testNow.Add(-time.Duration(10+i)*time.Hour), 1.0)
	}

	got, err := db.OverdueAccepted(ctx, time.Hour, 3, testNow)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want batch cap 3", len(got))
	}
	// Oldest-qualifying first.
	if !got[0].ScheduledAt.Before(got[1].ScheduledAt) {
		t.Error("candidates should be ordered oldest first")
	}
}

func TestUpdateExchangeSchedule_PartialFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	id := seedExchange(t, db, offerer, learner, domain.StatusPending, testNow.Add(24*time.Hour), 1.0)

	link := "https://meet.example.com/abc"
	if err := db.UpdateExchangeSchedule(ctx, id, domain.StatusPending, nil, nil, &link, nil, testNow); err != nil {
		t.Fatalf("update: %v", err)
	}

	ex, _ := db.GetExchange(ctx, id)
	if ex.MeetingLink != link {
		t.Errorf("meeting link = %q", ex.MeetingLink)
	}
	if !ex.ScheduledAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Error("scheduled_at should be untouched")
	}
}

func TestGetExchange_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetExchange(context.Background(), 404)
	if !errors.Is(err, domain.ErrExchangeNotFound) {
		t.Fatalf("err = %v, want ErrExchangeNotFound", err)
	}
}

func TestListUserExchanges_StatusFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	offerer := seedUser(t, db, "offerer@example.com", 0)
	learner := seedUser(t, db, "learner@example.com", 0)
	other := seedUser(t, db, "other@example.com", 0)

	seedExchange(t, db, offerer, learner, domain.StatusPending, testNow.Add(24*time.Hour), 1.0)
	seedExchange(t, db, offerer, learner, domain.StatusAccepted, testNow.Add(48*time.Hour), 1.0)
	seedExchange(t, db, other, learner, domain.StatusPending, testNow.Add(24*time.Hour), 1.0)

	all, err := db.ListUserExchanges(ctx, offerer, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("offerer sees %d, want 2", len(all))
	}

	pending := domain.StatusPending
	filtered, err := db.ListUserExchanges(ctx, learner, &pending)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("learner pending = %d, want 2", len(filtered))
	}
	for _, ex := range filtered {
		if ex.Status != domain.StatusPending {
			t.Errorf("filter leaked status %s", ex.Status)
		}
	}
}

func TestOffersSkill(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "teacher@example.com", 0)
	skill, err := db.CreateSkill(ctx, "Go", "programming")
	if err != nil {
		t.Fatalf("create skill: %v", err)
	}

	offers, err := db.OffersSkill(ctx, user, skill)
	if err != nil || offers {
		t.Fatalf("unexpected offering before SetUserSkill: %v %v", offers, err)
	}

	if err := db.SetUserSkill(ctx, user, skill, 4, true); err != nil {
		t.Fatalf("set user skill: %v", err)
	}
	offers, err = db.OffersSkill(ctx, user, skill)
	if err != nil || !offers {
		t.Fatalf("expected offering: %v %v", offers, err)
	}

	name, err := db.SkillName(ctx, skill)
	if err != nil || name != "Go" {
		t.Fatalf("skill name = %q, %v", name, err)
	}
}
