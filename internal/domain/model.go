// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the architecture; it depends on nothing.
package domain

import (
	"math"
	"time"
)

// ─── User Types ─────────────────────────────────────────────────────────────

// User is a marketplace participant. TimeCredits is the platform currency:
// one credit buys roughly one hour of taught time. The balance is mutated
// only through the credit engine so that every change has a ledger row.
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	TimeCredits int64     `json:"time_credits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Skill is an entry in the skill catalog.
type Skill struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// UserSkill links a user to a skill they offer to teach or want to learn.
type UserSkill struct {
	ID          int64 `json:"id"`
	UserID      int64 `json:"user_id"`
	SkillID     int64 `json:"skill_id"`
	Proficiency int   `json:"proficiency"` // 1–5
	Offering    bool  `json:"offering"`
}

// ─── Exchange Types ─────────────────────────────────────────────────────────

// ExchangeStatus is the closed set of lifecycle states for an exchange.
type ExchangeStatus string

const (
	StatusPending   ExchangeStatus = "Pending"
	StatusAccepted  ExchangeStatus = "Accepted"
	StatusRejected  ExchangeStatus = "Rejected"
	StatusCancelled ExchangeStatus = "Cancelled"
	StatusCompleted ExchangeStatus = "Completed"
	StatusNoShow    ExchangeStatus = "NoShow"
)

// Valid reports whether s is one of the six known states.
func (s ExchangeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected,
		StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether s is a permanent end state. Terminal exchanges
// are history; no transition ever leaves them.
func (s ExchangeStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Duration bounds for a single session, in hours.
const (
	MinDurationHours = 0.5
	MaxDurationHours = 4.0
)

// Exchange is one scheduled teach/learn session between two users for one
// skill. The offerer teaches; the learner pays time-credits on completion.
type Exchange struct {
	ID          int64          `json:"id"`
	OffererID   int64          `json:"offerer_id"`
	LearnerID   int64          `json:"learner_id"`
	SkillID     int64          `json:"skill_id"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	Duration    float64        `json:"duration"` // hours, 0.5–4.0
	Status      ExchangeStatus `json:"status"`
	MeetingLink string         `json:"meeting_link,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SessionEnd returns the instant the scheduled session finishes.
func (e *Exchange) SessionEnd() time.Time {
	return e.ScheduledAt.Add(time.Duration(e.Duration * float64(time.Hour)))
}

// IsParty reports whether userID is the offerer or the learner.
func (e *Exchange) IsParty(userID int64) bool {
	return e.OffererID == userID || e.LearnerID == userID
}

// RoleOf returns the role userID plays in this exchange. ok is false when
// the user is not a party at all.
func (e *Exchange) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case e.OffererID:
		return RoleOfferer, true
	case e.LearnerID:
		return RoleLearner, true
	}
	return Role(-1), false
}

// CreditsForDuration converts session hours into whole time-credits.
// The charge always rounds up: a 1.5h session costs 2 credits, so partial
// hours are never free.
func CreditsForDuration(hours float64) int64 {
	return int64(math.Ceil(hours))
}
