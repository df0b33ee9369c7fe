package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, no infrastructure dependency. The API layer maps
// them to status codes; services match them with errors.Is.

var (
	// Credit errors
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer credits to yourself")
	ErrInsufficientCredits = errors.New("insufficient credits")

	// Entity lookup errors
	ErrUserNotFound     = errors.New("user not found")
	ErrSkillNotFound    = errors.New("skill not found")
	ErrExchangeNotFound = errors.New("exchange not found")

	// Exchange creation errors
	ErrSelfExchange             = errors.New("cannot create an exchange with yourself")
	ErrOffererDoesNotOfferSkill = errors.New("the offerer does not offer this skill")
	ErrScheduledInPast          = errors.New("scheduled time must be in the future")
	ErrInvalidDuration          = errors.New("duration must be between 0.5 and 4 hours")

	// ErrInvalidTransition is the errors.Is target for every
	// *TransitionError. The concrete error carries the violated rule.
	ErrInvalidTransition = errors.New("invalid exchange transition")
)
