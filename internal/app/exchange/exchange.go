// Package exchange is the lifecycle service for teach/learn sessions. It
// orchestrates the full path of an exchange:
//
//  1. Creation: learner requests a session from an offerer for one skill
//  2. Review: offerer accepts or rejects, either party may cancel
//  3. Settlement: completion pays the offerer from the learner's balance
//
// Transition legality lives in the domain decision function; persistence and
// the atomic pay-on-complete live in the store. This service glues them and
// owns the user-facing validation.
package exchange

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillforge-network/skillforge/internal/domain"
	"github.com/skillforge-network/skillforge/internal/infra/observability"
	"github.com/skillforge-network/skillforge/internal/infra/sqlite"
)

// Service manages exchange lifecycle operations.
type Service struct {
	db       *sqlite.DB
	catalog  domain.SkillCatalog
	notifier domain.NotificationDispatcher
	logger   zerolog.Logger

	// Now is the clock; tests override it.
	Now func() time.Time
}

// New creates a lifecycle service. notifier may be nil.
func New(db *sqlite.DB, catalog domain.SkillCatalog, notifier domain.NotificationDispatcher, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		catalog:  catalog,
		notifier: notifier,
		logger:   logger.With().Str("component", "exchange").Logger(),
		Now:      time.Now,
	}
}

// CreateRequest carries the learner's proposal for a new exchange.
type CreateRequest struct {
	OffererID   int64     `json:"offerer_id"`
	SkillID     int64     `json:"skill_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Duration    float64   `json:"duration"`
	MeetingLink string    `json:"meeting_link"`
	Notes       string    `json:"notes"`
}

// Create validates and persists a new Pending exchange requested by
// learnerID. The offerer must actually offer the skill, the session must be
// in the future, and the duration within bounds.
func (s *Service) Create(ctx context.Context, learnerID int64, req CreateRequest) (*domain.Exchange, error) {
	if learnerID == req.OffererID {
		return nil, domain.ErrSelfExchange
	}
	if req.Duration < domain.MinDurationHours || req.Duration > domain.MaxDurationHours {
		return nil, domain.ErrInvalidDuration
	}
	now := s.Now()
	if !req.ScheduledAt.After(now) {
		return nil, domain.ErrScheduledInPast
	}

	offers, err := s.catalog.OffersSkill(ctx, req.OffererID, req.SkillID)
	if err != nil {
		return nil, err
	}
	if !offers {
		return nil, domain.ErrOffererDoesNotOfferSkill
	}

	ex := &domain.Exchange{
		OffererID:   req.OffererID,
		LearnerID:   learnerID,
		SkillID:     req.SkillID,
		ScheduledAt: req.ScheduledAt,
		Duration:    req.Duration,
		Status:      domain.StatusPending,
		MeetingLink: req.MeetingLink,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.db.InsertExchange(ctx, ex)
	if err != nil {
		return nil, err
	}
	ex.ID = id

	s.logger.Info().
		Int64("exchange_id", id).
		Int64("learner_id", learnerID).
		Int64("offerer_id", req.OffererID).
		Int64("skill_id", req.SkillID).
		Time("scheduled_at", req.ScheduledAt).
		Msg("Exchange requested")

	if s.notifier != nil {
		s.notifier.ExchangeRequested(ex)
	}
	return ex, nil
}

// Accept moves a Pending exchange to Accepted. Only the offerer may accept.
func (s *Service) Accept(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	return s.transition(ctx, exchangeID, actorID, domain.StatusAccepted)
}

// Reject moves a Pending exchange to Rejected. Only the offerer may reject.
func (s *Service) Reject(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	return s.transition(ctx, exchangeID, actorID, domain.StatusRejected)
}

// Cancel moves a Pending or Accepted exchange to Cancelled. Either party may
// cancel. Cancelling an Accepted session less than 24 hours before its start
// is allowed but logged, to support future late-cancellation policies.
func (s *Service) Cancel(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	ex, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if ex.Status == domain.StatusAccepted && ex.ScheduledAt.Sub(now) < 24*time.Hour {
		s.logger.Warn().
			Int64("exchange_id", exchangeID).
			Int64("user_id", actorID).
			Time("scheduled_at", ex.ScheduledAt).
			Msg("Late cancellation of an accepted exchange")
	}
	return s.transition(ctx, exchangeID, actorID, domain.StatusCancelled)
}

// MarkNoShow records that the counterpart never showed up. Either party may
// mark it after the session has ended; no credits move.
func (s *Service) MarkNoShow(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	return s.transition(ctx, exchangeID, actorID, domain.StatusNoShow)
}

// transition is the shared non-paying state change: resolve the actor's
// role, ask the decision function, then apply the guarded update.
func (s *Service) transition(ctx context.Context, exchangeID, actorID int64, target domain.ExchangeStatus) (*domain.Exchange, error) {
	ex, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	role, ok := ex.RoleOf(actorID)
	if !ok {
		observability.InvalidTransitionsTotal.Inc()
		return nil, domain.NotAParty(ex.Status, target)
	}
	previous := ex.Status
	if terr := domain.CheckTransition(ex.Status, target, role, s.Now(), ex.SessionEnd()); terr != nil {
		observability.InvalidTransitionsTotal.Inc()
		return nil, terr
	}

	if err := s.db.TransitionExchange(ctx, exchangeID, previous, target, nil, s.Now()); err != nil {
		observability.InvalidTransitionsTotal.Inc()
		return nil, err
	}

	observability.ExchangeTransitionsTotal.WithLabelValues(string(target)).Inc()
	s.logger.Info().
		Int64("exchange_id", exchangeID).
		Int64("user_id", actorID).
		Str("role", role.String()).
		Str("from", string(previous)).
		Str("to", string(target)).
		Msg("Exchange transitioned")

	fresh, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ExchangeStatusChanged(fresh, previous)
	}
	return fresh, nil
}

// Complete settles an Accepted exchange after its session has ended: the
// learner pays ceil(duration) credits to the offerer and the exchange
// becomes Completed, all in one atomic unit. When the learner cannot cover
// the charge the exchange stays Accepted and ErrInsufficientCredits is
// returned; a human caller gets to resolve that, unlike the sweeper.
func (s *Service) Complete(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	ex, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	role, ok := ex.RoleOf(actorID)
	if !ok {
		observability.InvalidTransitionsTotal.Inc()
		return nil, domain.NotAParty(ex.Status, domain.StatusCompleted)
	}
	previous := ex.Status
	if terr := domain.CheckTransition(ex.Status, domain.StatusCompleted, role, s.Now(), ex.SessionEnd()); terr != nil {
		observability.InvalidTransitionsTotal.Inc()
		return nil, terr
	}

	skillName, err := s.catalog.SkillName(ctx, ex.SkillID)
	if err != nil {
		return nil, err
	}
	credits := domain.CreditsForDuration(ex.Duration)
	reason := "Completed exchange for skill: " + skillName

	err = s.db.CompleteExchangeAndTransfer(ctx, exchangeID, ex.LearnerID, ex.OffererID, credits, reason, "", s.Now())
	if err != nil {
		observability.InvalidTransitionsTotal.Inc()
		return nil, err
	}

	observability.ExchangeTransitionsTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
	observability.TransfersTotal.WithLabelValues(string(domain.TxExchangeComplete)).Inc()
	observability.CreditsMoved.Add(float64(credits))
	s.logger.Info().
		Int64("exchange_id", exchangeID).
		Int64("user_id", actorID).
		Int64("credits", credits).
		Str("skill", skillName).
		Msg("Exchange completed, offerer paid")

	fresh, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.ExchangeStatusChanged(fresh, previous)
		s.notifier.CreditTransferred(ex.LearnerID, -credits, reason)
		s.notifier.CreditTransferred(ex.OffererID, credits, reason)
	}
	return fresh, nil
}

// UpdateRequest carries a partial reschedule. Nil fields keep their stored
// values.
type UpdateRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	Duration    *float64   `json:"duration"`
	MeetingLink *string    `json:"meeting_link"`
	Notes       *string    `json:"notes"`
}

// Update reschedules an exchange. While Pending either party may edit it;
// once Accepted only the offerer may, so the learner cannot silently move a
// session the offerer already committed to. Terminal exchanges are frozen.
func (s *Service) Update(ctx context.Context, exchangeID, actorID int64, req UpdateRequest) (*domain.Exchange, error) {
	ex, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	role, ok := ex.RoleOf(actorID)
	if !ok {
		return nil, domain.NotAParty(ex.Status, ex.Status)
	}

	switch ex.Status {
	case domain.StatusPending:
		// either party
	case domain.StatusAccepted:
		if role != domain.RoleOfferer {
			return nil, &domain.TransitionError{
				From: ex.Status, To: ex.Status, Kind: domain.WrongActor,
				Reason: "only the offerer can reschedule an accepted exchange",
			}
		}
	default:
		return nil, &domain.TransitionError{
			From: ex.Status, To: ex.Status, Kind: domain.WrongState,
			Reason: "cannot edit an exchange with status " + string(ex.Status),
		}
	}

	if req.Duration != nil && (*req.Duration < domain.MinDurationHours || *req.Duration > domain.MaxDurationHours) {
		return nil, domain.ErrInvalidDuration
	}
	if req.ScheduledAt != nil && !req.ScheduledAt.After(s.Now()) {
		return nil, domain.ErrScheduledInPast
	}

	err = s.db.UpdateExchangeSchedule(ctx, exchangeID, ex.Status, req.ScheduledAt, req.Duration, req.MeetingLink, req.Notes, s.Now())
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("exchange_id", exchangeID).
		Int64("user_id", actorID).
		Msg("Exchange rescheduled")
	return s.db.GetExchange(ctx, exchangeID)
}

// Get returns an exchange to one of its parties. Non-parties get
// ErrExchangeNotFound so the endpoint does not leak which ids exist.
func (s *Service) Get(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error) {
	ex, err := s.db.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if !ex.IsParty(actorID) {
		return nil, domain.ErrExchangeNotFound
	}
	return ex, nil
}

// List returns the user's exchanges, optionally filtered by status, most
// recently scheduled first.
func (s *Service) List(ctx context.Context, userID int64, status *domain.ExchangeStatus) ([]*domain.Exchange, error) {
	return s.db.ListUserExchanges(ctx, userID, status)
}

// CanUserModify reports whether the user may still edit the exchange: any
// party while Pending, or while Accepted with the session still ahead.
func (s *Service) CanUserModify(ex *domain.Exchange, userID int64) bool {
	if !ex.IsParty(userID) {
		return false
	}
	switch ex.Status {
	case domain.StatusPending:
		return true
	case domain.StatusAccepted:
		return ex.ScheduledAt.After(s.Now())
	}
	return false
}
