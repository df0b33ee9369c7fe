package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── Exchange Operations ────────────────────────────────────────────────────
// Status writes are guarded: every UPDATE carries the expected current
// status in its WHERE clause. When two actors race on the same exchange
// (a user completing versus the sweeper), exactly one guard matches; the
// loser gets a TransitionError built from the fresh terminal status.

const exchangeColumns = `id, offerer_id, learner_id, skill_id, scheduled_at,
	duration_hours, status, meeting_link, notes, created_at, updated_at`

func scanExchange(row interface{ Scan(...any) error }) (*domain.Exchange, error) {
	var e domain.Exchange
	var status string
	var scheduled, created, updated int64
	err := row.Scan(&e.ID, &e.OffererID, &e.LearnerID, &e.SkillID, &scheduled,
		&e.Duration, &status, &e.MeetingLink, &e.Notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	e.Status = domain.ExchangeStatus(status)
	e.ScheduledAt = fromUnix(scheduled)
	e.CreatedAt = fromUnix(created)
	e.UpdatedAt = fromUnix(updated)
	return &e, nil
}

// InsertExchange persists a new exchange in Pending state.
func (db *DB) InsertExchange(ctx context.Context, ex *domain.Exchange) (int64, error) {
	res, err := db.db.ExecContext(ctx, `
		INSERT INTO exchanges
			(offerer_id, learner_id, skill_id, scheduled_at, duration_hours,
			 status, meeting_link, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ex.OffererID, ex.LearnerID, ex.SkillID, unix(ex.ScheduledAt), ex.Duration,
		string(ex.Status), ex.MeetingLink, ex.Notes, unix(ex.CreatedAt), unix(ex.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert exchange: %w", err)
	}
	return res.LastInsertId()
}

// GetExchange retrieves an exchange by id.
func (db *DB) GetExchange(ctx context.Context, id int64) (*domain.Exchange, error) {
	ex, err := scanExchange(db.db.QueryRowContext(ctx,
		`SELECT `+exchangeColumns+` FROM exchanges WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrExchangeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange: %w", err)
	}
	return ex, nil
}

// ListUserExchanges returns all exchanges the user is a party to, newest
// scheduled first, optionally filtered by status.
func (db *DB) ListUserExchanges(ctx context.Context, userID int64, status *domain.ExchangeStatus) ([]*domain.Exchange, error) {
	q := `SELECT ` + exchangeColumns + ` FROM exchanges WHERE (offerer_id = ? OR learner_id = ?)`
	args := []any{userID, userID}
	if status != nil {
		q += ` AND status = ?`
		args = append(args, string(*status))
	}
	q += ` ORDER BY scheduled_at DESC`

	rows, err := db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var result []*domain.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		result = append(result, ex)
	}
	return result, rows.Err()
}

// TransitionExchange applies a non-paying status change (accept, reject,
// cancel, manual no-show) guarded by the expected current status. When
// notes is non-nil the caller's text overwrites the stored notes; nil
// leaves them untouched.
func (db *DB) TransitionExchange(ctx context.Context, id int64, from, to domain.ExchangeStatus, notes *string, now time.Time) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := transitionInTx(tx, id, from, to, notes, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

func transitionInTx(tx *sql.Tx, id int64, from, to domain.ExchangeStatus, notes *string, now time.Time) error {
	res, err := tx.Exec(`
		UPDATE exchanges
		SET status = ?, notes = COALESCE(?, notes), updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), notes, unix(now), id, string(from))
	if err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return staleTransition(tx, id, to)
	}
	return nil
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// staleTransition builds the race-loser error: the guard did not match, so
// re-read the fresh status and report it as the violated rule.
func staleTransition(q rowQuerier, id int64, target domain.ExchangeStatus) error {
	var status string
	err := q.QueryRow(`SELECT status FROM exchanges WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrExchangeNotFound
	}
	if err != nil {
		return fmt.Errorf("read exchange status: %w", err)
	}
	return &domain.TransitionError{
		From:   domain.ExchangeStatus(status),
		To:     target,
		Kind:   domain.WrongState,
		Reason: fmt.Sprintf("exchange is already %s", status),
	}
}

// CompleteExchangeAndTransfer is the money-affecting unit: it moves the
// exchange from Accepted to Completed and pays the offerer in one atomic
// transaction. noteTag, when non-empty, is appended to the stored notes
// (the sweeper's audit marker). Exactly one such unit can ever commit for
// a given exchange because the status guard fires at most once.
func (db *DB) CompleteExchangeAndTransfer(ctx context.Context, id, learnerID, offererID, credits int64, reason, noteTag string, now time.Time) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE exchanges
		SET status = ?,
		    notes = CASE WHEN ? = '' THEN notes
		                 WHEN notes = '' THEN ?
		                 ELSE notes || ' ' || ? END,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.StatusCompleted), noteTag, noteTag, noteTag, unix(now), id, string(domain.StatusAccepted))
	if err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return staleTransition(tx, id, domain.StatusCompleted)
	}

	if err := transferInTx(tx, learnerID, offererID, credits, domain.TxExchangeComplete, reason, &id, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

// MarkNoShowAuto is the sweeper's underfunded path: Accepted → NoShow with
// an appended audit note and zero credit movement, guarded like every other
// status write.
func (db *DB) MarkNoShowAuto(ctx context.Context, id int64, noteTag string, now time.Time) error {
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE exchanges
		SET status = ?,
		    notes = CASE WHEN notes = '' THEN ? ELSE notes || ' ' || ? END,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`, string(domain.StatusNoShow), noteTag, noteTag, unix(now), id, string(domain.StatusAccepted))
	if err != nil {
		return fmt.Errorf("update exchange status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return staleTransition(tx, id, domain.StatusNoShow)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit no-show: %w", err)
	}
	return nil
}

// UpdateExchangeSchedule rewrites the scheduling fields of an exchange.
// Nil fields are left untouched. Role/status legality is the lifecycle
// service's job; the guard only protects against concurrent terminal
// transitions.
func (db *DB) UpdateExchangeSchedule(ctx context.Context, id int64, from domain.ExchangeStatus, scheduledAt *time.Time, duration *float64, meetingLink, notes *string, now time.Time) error {
	var scheduledUnix *int64
	if scheduledAt != nil {
		v := unix(*scheduledAt)
		scheduledUnix = &v
	}

	res, err := db.db.ExecContext(ctx, `
		UPDATE exchanges
		SET scheduled_at   = COALESCE(?, scheduled_at),
		    duration_hours = COALESCE(?, duration_hours),
		    meeting_link   = COALESCE(?, meeting_link),
		    notes          = COALESCE(?, notes),
		    updated_at     = ?
		WHERE id = ? AND status = ?
	`, scheduledUnix, duration, meetingLink, notes, unix(now), id, string(from))
	if err != nil {
		return fmt.Errorf("update exchange: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return staleTransition(db.db, id, from)
	}
	return nil
}

// OverdueAccepted returns up to batchSize Accepted exchanges whose session
// end plus grace period lies before now, oldest-qualifying first.
func (db *DB) OverdueAccepted(ctx context.Context, grace time.Duration, batchSize int, now time.Time) ([]*domain.Exchange, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT `+exchangeColumns+` FROM exchanges
		WHERE status = ?
		  AND scheduled_at + CAST(duration_hours * 3600 AS INTEGER) + ? < ?
		ORDER BY scheduled_at ASC
		LIMIT ?
	`, string(domain.StatusAccepted), int64(grace.Seconds()), unix(now), batchSize)
	if err != nil {
		return nil, fmt.Errorf("query overdue exchanges: %w", err)
	}
	defer rows.Close()

	var result []*domain.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		result = append(result, ex)
	}
	return result, rows.Err()
}
