package domain

import (
	"fmt"
	"time"
)

// ─── Exchange State Machine ─────────────────────────────────────────────────
// CheckTransition is a pure decision function: it never touches storage or
// moves credits. Orchestration (the lifecycle service and the sweeper) asks
// it whether a transition is legal and then applies the result atomically.
//
//   Pending  → Accepted   offerer
//   Pending  → Rejected   offerer
//   Pending  → Cancelled  offerer or learner
//   Accepted → Cancelled  offerer or learner
//   Accepted → Completed  either party or the sweeper, after session end
//   Accepted → NoShow     either party or the sweeper, after session end

// Role identifies who is requesting a transition.
type Role int

const (
	RoleOfferer Role = iota
	RoleLearner
	RoleSweeper
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleLearner:
		return "learner"
	case RoleSweeper:
		return "sweeper"
	default:
		return "unknown"
	}
}

// TransitionErrorKind classifies why a transition was refused.
type TransitionErrorKind int

const (
	// WrongActor: the requesting role may never perform this transition.
	WrongActor TransitionErrorKind = iota
	// WrongState: the exchange is not in a state this transition leaves from.
	WrongState
	// PreconditionNotMet: actor and state are fine but a temporal
	// precondition fails (e.g. completing before the session has ended).
	PreconditionNotMet
)

// TransitionError reports an illegal exchange transition together with the
// specific violated rule, so callers can explain the refusal to users
// instead of a generic "bad request".
type TransitionError struct {
	From   ExchangeStatus
	To     ExchangeStatus
	Kind   TransitionErrorKind
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s → %s: %s", e.From, e.To, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidTransition) match any TransitionError.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CheckTransition decides whether the actor in the given role may move an
// exchange from current to target at instant now. sessionEnd is the
// scheduled end of the session (ScheduledAt + Duration). A nil return means
// the transition is allowed.
func CheckTransition(current, target ExchangeStatus, role Role, now, sessionEnd time.Time) *TransitionError {
	switch target {
	case StatusAccepted:
		if role != RoleOfferer {
			return refuse(current, target, WrongActor, "only the offerer can accept an exchange")
		}
		if current != StatusPending {
			return refuseState(current, target, "accept")
		}

	case StatusRejected:
		if role != RoleOfferer {
			return refuse(current, target, WrongActor, "only the offerer can reject an exchange")
		}
		if current != StatusPending {
			return refuseState(current, target, "reject")
		}

	case StatusCancelled:
		if role != RoleOfferer && role != RoleLearner {
			return refuse(current, target, WrongActor, "only a party to the exchange can cancel it")
		}
		if current != StatusPending && current != StatusAccepted {
			return refuseState(current, target, "cancel")
		}

	case StatusCompleted:
		if current != StatusAccepted {
			return refuseState(current, target, "complete")
		}
		if now.Before(sessionEnd) {
			return refuse(current, target, PreconditionNotMet, "cannot complete an exchange before it has ended")
		}

	case StatusNoShow:
		if current != StatusAccepted {
			return refuse(current, target, WrongState,
				fmt.Sprintf("cannot mark an exchange with status %s as no-show", current))
		}
		if now.Before(sessionEnd) {
			return refuse(current, target, PreconditionNotMet, "cannot mark as no-show before the session has ended")
		}

	default:
		return refuse(current, target, WrongState, fmt.Sprintf("unknown target status %s", target))
	}
	return nil
}

func refuse(from, to ExchangeStatus, kind TransitionErrorKind, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Kind: kind, Reason: reason}
}

func refuseState(from, to ExchangeStatus, verb string) *TransitionError {
	return refuse(from, to, WrongState, fmt.Sprintf("cannot %s an exchange with status %s", verb, from))
}

// NotAParty builds the refusal for a user who is neither offerer nor
// learner of the exchange.
func NotAParty(current, target ExchangeStatus) *TransitionError {
	return refuse(current, target, WrongActor, "you are not part of this exchange")
}
