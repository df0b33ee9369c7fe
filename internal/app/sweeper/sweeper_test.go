package sweeper

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillforge-network/skillforge/internal/domain"
	"github.com/skillforge-network/skillforge/internal/infra/health"
	"github.com/skillforge-network/skillforge/internal/infra/sqlite"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sw      *Sweeper
	db      *sqlite.DB
	tracker *health.Tracker
	offerer int64
	learner int64
	skill   int64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db, err := sqlite.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	f := &fixture{db: db}

	f.offerer, err = db.CreateUser(ctx, "offerer@example.com", "Offerer", testNow)
	if err != nil {
		t.Fatalf("create offerer: %v", err)
	}
	f.learner, err = db.CreateUser(ctx, "learner@example.com", "Learner", testNow)
	if err != nil {
		t.Fatalf("create learner: %v", err)
	}
	f.skill, err = db.CreateSkill(ctx, "Go Programming", "Technology")
	if err != nil {
		t.Fatalf("create skill: %v", err)
	}

	f.tracker = health.NewTracker(health.WithClock(func() time.Time { return testNow }))
	f.sw = New(opts, db, f.tracker, nil, zerolog.Nop())
	f.sw.Now = func() time.Time { return testNow }
	return f
}

func (f *fixture) fund(t *testing.T, userID, credits int64) {
	t.Helper()
	if err := f.db.ApplyAdjustment(context.Background(), userID, credits, domain.TxSignupBonus, "seed", testNow); err != nil {
		t.Fatalf("fund user %d: %v", userID, err)
	}
}

// acceptedExchange seeds an Accepted exchange whose session ended endedAgo
// before testNow.
func (f *fixture) acceptedExchange(t *testing.T, duration float64, endedAgo time.Duration) int64 {
	t.Helper()
	ctx := context.Background()
	sessionLen := time.Duration(duration * float64(time.Hour))
	ex := &domain.Exchange{
		OffererID:   f.offerer,
		LearnerID:   f.learner,
		SkillID:     f.skill,
		ScheduledAt: testNow.Add(-endedAgo - sessionLen),
		Duration:    duration,
		Status:      domain.StatusAccepted,
		CreatedAt:   testNow.Add(-48 * time.Hour),
		UpdatedAt:   testNow.Add(-48 * time.Hour),
	}
	id, err := f.db.InsertExchange(ctx, ex)
	if err != nil {
		t.Fatalf("insert exchange: %v", err)
	}
	return id
}

func TestSweepCompletesFundedExchange(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.fund(t, f.learner, 5)
	id := f.acceptedExchange(t, 1.5, 3*time.Hour) // ceil(1.5) = 2 credits

	f.sw.RunOnce(ctx)

	ex, err := f.db.GetExchange(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ex.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want Completed", ex.Status)
	}
	if !strings.Contains(ex.Notes, "[Auto-completed by system]") {
		t.Fatalf("notes = %q, want auto-complete marker", ex.Notes)
	}

	if bal, _ := f.db.UserBalance(ctx, f.learner); bal != 3 {
		t.Fatalf("learner balance = %d, want 3", bal)
	}
	if bal, _ := f.db.UserBalance(ctx, f.offerer); bal != 2 {
		t.Fatalf("offerer balance = %d, want 2", bal)
	}

	rows, err := f.db.LedgerRowsForExchange(ctx, id)
	if err != nil {
		t.Fatalf("ledger rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
	if rows[0].Reason != "Auto-completed exchange for skill: Go Programming" {
		t.Fatalf("reason = %q", rows[0].Reason)
	}
}

func TestSweepMarksUnderfundedNoShow(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.fund(t, f.learner, 1)
	id := f.acceptedExchange(t, 2.0, 3*time.Hour) // needs 2, has 1

	f.sw.RunOnce(ctx)

	ex, err := f.db.GetExchange(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ex.Status != domain.StatusNoShow {
		t.Fatalf("status = %s, want NoShow", ex.Status)
	}
	if !strings.Contains(ex.Notes, "insufficient credits (1/2)") {
		t.Fatalf("notes = %q, want underfunded marker with balances", ex.Notes)
	}

	// No credits moved either direction.
	if bal, _ := f.db.UserBalance(ctx, f.learner); bal != 1 {
		t.Fatalf("learner balance = %d, want 1", bal)
	}
	rows, _ := f.db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 0 {
		t.Fatalf("ledger rows = %d, want 0", len(rows))
	}
}

func TestSweepSkipsInsideGracePeriod(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.fund(t, f.learner, 5)
	id := f.acceptedExchange(t, 1.0, time.Hour) // ended 1h ago, grace is 2h

	f.sw.RunOnce(ctx)

	ex, err := f.db.GetExchange(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ex.Status != domain.StatusAccepted {
		t.Fatalf("status = %s, want still Accepted inside grace period", ex.Status)
	}
}

func TestSweepOneFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.fund(t, f.learner, 1)

	// Oldest first: the underfunded 2-credit exchange, then a 1-credit one
	// the learner can still afford.
	poor := f.acceptedExchange(t, 2.0, 5*time.Hour)
	ok := f.acceptedExchange(t, 1.0, 3*time.Hour)

	f.sw.RunOnce(ctx)

	if ex, _ := f.db.GetExchange(ctx, poor); ex.Status != domain.StatusNoShow {
		t.Fatalf("underfunded exchange status = %s, want NoShow", ex.Status)
	}
	if ex, _ := f.db.GetExchange(ctx, ok); ex.Status != domain.StatusCompleted {
		t.Fatalf("funded exchange status = %s, want Completed", ex.Status)
	}
}

func TestSweepRespectsBatchSize(t *testing.T) {
	opts := DefaultOptions()
	opts.BatchSize = 2
	f := newFixture(t, opts)
	ctx := context.Background()
	f.fund(t, f.learner, 100)

	var ids []int64
	for i := 0; i < 5; i++ {
		// Staggered ends, oldest first in the sweep order.
		ids = append(ids, f.acceptedExchange(t, 1.0, time.Duration(10-i)*time.Hour))
	}

	f.sw.RunOnce(ctx)

	completed := 0
	for _, id := range ids {
		ex, err := f.db.GetExchange(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if ex.Status == domain.StatusCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Fatalf("completed = %d in one sweep, want batch size 2", completed)
	}

	// The two oldest go first.
	for _, id := range ids[:2] {
		if ex, _ := f.db.GetExchange(ctx, id); ex.Status != domain.StatusCompleted {
			t.Fatalf("exchange %d should have been swept first", id)
		}
	}
}

func TestSweepReportsHealth(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	f.sw.RunOnce(context.Background())

	status := f.tracker.Check()
	if !status.Healthy {
		t.Fatalf("tracker unhealthy after successful sweep: %s", status.Detail)
	}
}

func TestDisabledSweeperReturnsImmediately(t *testing.T) {
	opts := DefaultOptions()
	opts.Enabled = false
	f := newFixture(t, opts)

	done := make(chan struct{})
	go func() {
		f.sw.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled sweeper did not return")
	}
}

func TestSweeperHaltsOnCancelledContext(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	f.fund(t, f.learner, 100)
	for i := 0; i < 10; i++ {
		f.acceptedExchange(t, 1.0, time.Duration(20-i)*time.Hour)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.sw.RunOnce(ctx)

	// A cancelled context stops the batch before resolving anything; a few
	// may slip through depending on where cancellation lands, but the full
	// batch must not complete.
	exs, err := f.db.ListUserExchanges(context.Background(), f.learner, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	completed := 0
	for _, ex := range exs {
		if ex.Status == domain.StatusCompleted {
			completed++
		}
	}
	if completed == 10 {
		t.Fatal("cancelled sweep resolved the entire batch")
	}
}

func TestManualCompleteBeatsSweeper(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx := context.Background()
	f.fund(t, f.learner, 5)
	id := f.acceptedExchange(t, 1.0, 3*time.Hour)

	// A manual completion lands between the sweep's candidate load and its
	// resolution attempt.
	if err := f.db.CompleteExchangeAndTransfer(ctx, id, f.learner, f.offerer, 1, "Completed exchange for skill: Go Programming", "", testNow); err != nil {
		t.Fatalf("manual complete: %v", err)
	}

	if err := f.sw.resolve(ctx, &domain.Exchange{
		ID: id, OffererID: f.offerer, LearnerID: f.learner,
		SkillID: f.skill, Duration: 1.0, Status: domain.StatusAccepted,
	}, testNow); err != nil {
		t.Fatalf("resolve after manual completion should be a quiet no-op, got %v", err)
	}

	// Exactly one payment, not two.
	rows, _ := f.db.LedgerRowsForExchange(ctx, id)
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want exactly 2", len(rows))
	}
	if ex, _ := f.db.GetExchange(ctx, id); ex.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want Completed", ex.Status)
	}
}

func TestRunSweepsOnTicker(t *testing.T) {
	opts := DefaultOptions()
	opts.CheckInterval = 20 * time.Millisecond
	f := newFixture(t, opts)
	f.fund(t, f.learner, 5)
	id := f.acceptedExchange(t, 1.0, 3*time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.sw.Run(ctx)
		close(done)
	}()

	deadline := time.After(900 * time.Millisecond)
	for {
		ex, err := f.db.GetExchange(context.Background(), id)
		if err == nil && ex.Status == domain.StatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ticker sweep never resolved the exchange")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNoShowNoteFormat(t *testing.T) {
	got := fmt.Sprintf(noteNoShowFmt, 1, 3)
	want := "[Auto-completed] Learner had insufficient credits (1/3)"
	if got != want {
		t.Fatalf("note = %q, want %q", got, want)
	}
}
