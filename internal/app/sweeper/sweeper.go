// Package sweeper resolves exchanges that both parties forgot about. On a
// fixed interval it finds Accepted exchanges whose session ended longer than
// the grace period ago and settles each one:
//
//  1. Learner can cover the charge → auto-complete and pay the offerer
//  2. Learner cannot cover it → mark no-show, move no credits
//
// Either way the exchange reaches a terminal state, so stale sessions do not
// pile up waiting for a human. Each candidate is resolved independently; one
// failure never aborts the batch.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillforge-network/skillforge/internal/domain"
	"github.com/skillforge-network/skillforge/internal/infra/observability"
	"github.com/skillforge-network/skillforge/internal/infra/sqlite"
)

// Options controls sweep cadence and scope.
type Options struct {
	Enabled       bool          // run at all (default: true)
	CheckInterval time.Duration // time between sweeps (default: 5m)
	GracePeriod   time.Duration // slack after session end before auto-resolving (default: 2h)
	BatchSize     int           // max exchanges per sweep (default: 50)
}

// DefaultOptions returns the production sweep settings.
func DefaultOptions() Options {
	return Options{
		Enabled:       true,
		CheckInterval: 5 * time.Minute,
		GracePeriod:   2 * time.Hour,
		BatchSize:     50,
	}
}

// Audit markers appended to exchange notes so a reader can tell an
// auto-resolved exchange from a manually resolved one.
const (
	noteAutoCompleted = "[Auto-completed by system]"
	noteNoShowFmt     = "[Auto-completed] Learner had insufficient credits (%d/%d)"
)

// Sweeper is the autonomous completion worker.
type Sweeper struct {
	opts     Options
	db       *sqlite.DB
	health   domain.HealthSink
	notifier domain.NotificationDispatcher
	logger   zerolog.Logger

	// Now is the clock; tests override it.
	Now func() time.Time
}

// New creates a sweeper. health and notifier may be nil.
func New(opts Options, db *sqlite.DB, health domain.HealthSink, notifier domain.NotificationDispatcher, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		opts:     opts,
		db:       db,
		health:   health,
		notifier: notifier,
		logger:   logger.With().Str("component", "sweeper").Logger(),
		Now:      time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. A disabled
// sweeper returns immediately without reporting health, so a deliberately
// switched-off sweeper never shows up as unhealthy.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.opts.Enabled {
		s.logger.Info().Msg("Sweeper disabled, not starting")
		return
	}
	s.logger.Info().
		Dur("check_interval", s.opts.CheckInterval).
		Dur("grace_period", s.opts.GracePeriod).
		Int("batch_size", s.opts.BatchSize).
		Msg("Sweeper started")

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep: load one batch of overdue Accepted
// exchanges and resolve each independently.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.Now()
	overdue, err := s.db.OverdueAccepted(ctx, s.opts.GracePeriod, s.opts.BatchSize, now)
	if err != nil {
		observability.SweeperRuns.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Msg("Sweep failed to load overdue exchanges")
		if s.health != nil {
			s.health.ReportError(fmt.Sprintf("load overdue exchanges: %v", err))
		}
		return
	}

	observability.SweeperBatchSize.Observe(float64(len(overdue)))
	resolved := 0
	for _, ex := range overdue {
		if ctx.Err() != nil {
			return
		}
		if err := s.resolve(ctx, ex, now); err != nil {
			s.logger.Error().Err(err).Int64("exchange_id", ex.ID).Msg("Failed to resolve overdue exchange")
			continue
		}
		resolved++
	}

	observability.SweeperRuns.WithLabelValues("ok").Inc()
	if len(overdue) > 0 {
		s.logger.Info().
			Int("found", len(overdue)).
			Int("resolved", resolved).
			Msg("Sweep finished")
	}
	if s.health != nil {
		s.health.ReportSuccess()
	}
}

// resolve settles one overdue exchange. The balance read and the guarded
// write are separate statements, so a concurrent manual completion can win
// in between; the guard turns that race into a TransitionError, which is
// the expected outcome and not a failure.
func (s *Sweeper) resolve(ctx context.Context, ex *domain.Exchange, now time.Time) error {
	credits := domain.CreditsForDuration(ex.Duration)

	balance, err := s.db.UserBalance(ctx, ex.LearnerID)
	if err != nil {
		return fmt.Errorf("read learner balance: %w", err)
	}

	if balance < credits {
		return s.markNoShow(ctx, ex, balance, credits, now)
	}
	return s.complete(ctx, ex, credits, now)
}

func (s *Sweeper) complete(ctx context.Context, ex *domain.Exchange, credits int64, now time.Time) error {
	skillName, err := s.db.SkillName(ctx, ex.SkillID)
	if err != nil {
		return fmt.Errorf("resolve skill name: %w", err)
	}
	reason := "Auto-completed exchange for skill: " + skillName

	err = s.db.CompleteExchangeAndTransfer(ctx, ex.ID, ex.LearnerID, ex.OffererID, credits, reason, noteAutoCompleted, now)
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.logger.Debug().Int64("exchange_id", ex.ID).Err(err).Msg("Exchange resolved elsewhere before sweep")
		return nil
	}
	if errors.Is(err, domain.ErrInsufficientCredits) {
		// The balance moved under us between the read and the write. The
		// next sweep will take the no-show path.
		s.logger.Debug().Int64("exchange_id", ex.ID).Msg("Learner balance dropped mid-sweep, deferring")
		return nil
	}
	if err != nil {
		return err
	}

	observability.SweeperResolved.WithLabelValues("completed").Inc()
	observability.ExchangeTransitionsTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	observability.TransfersTotal.WithLabelValues(string(domain.TxExchangeComplete)).Inc()
	observability.CreditsMoved.Add(float64(credits))
	s.logger.Info().
		Int64("exchange_id", ex.ID).
		Int64("credits", credits).
		Str("skill", skillName).
		Msg("Auto-completed overdue exchange")

	s.notifyResolved(ctx, ex.ID, domain.StatusAccepted)
	if s.notifier != nil {
		s.notifier.CreditTransferred(ex.LearnerID, -credits, reason)
		s.notifier.CreditTransferred(ex.OffererID, credits, reason)
	}
	return nil
}

func (s *Sweeper) markNoShow(ctx context.Context, ex *domain.Exchange, balance, credits int64, now time.Time) error {
	note := fmt.Sprintf(noteNoShowFmt, balance, credits)

	err := s.db.MarkNoShowAuto(ctx, ex.ID, note, now)
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.logger.Debug().Int64("exchange_id", ex.ID).Err(err).Msg("Exchange resolved elsewhere before sweep")
		return nil
	}
	if err != nil {
		return err
	}

	observability.SweeperResolved.WithLabelValues("no_show").Inc()
	observability.ExchangeTransitionsTotal.WithLabelValues(string(domain.StatusNoShow)).Inc()
	s.logger.Info().
		Int64("exchange_id", ex.ID).
		Int64("balance", balance).
		Int64("needed", credits).
		Msg("Marked overdue exchange no-show, learner underfunded")

	s.notifyResolved(ctx, ex.ID, domain.StatusAccepted)
	return nil
}

func (s *Sweeper) notifyResolved(ctx context.Context, exchangeID int64, previous domain.ExchangeStatus) {
	if s.notifier == nil {
		return
	}
	fresh, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return
	}
	s.notifier.ExchangeStatusChanged(fresh, previous)
}
