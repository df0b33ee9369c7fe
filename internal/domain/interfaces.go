package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between the transaction core and its
// peripheral collaborators. Infrastructure implements them; the core only
// depends on the contracts.

// SkillCatalog answers skill questions at exchange-creation time.
type SkillCatalog interface {
	// OffersSkill reports whether the user has marked the skill as offering.
	OffersSkill(ctx context.Context, userID, skillID int64) (bool, error)

	// SkillName resolves a skill id to its display name, for ledger reasons
	// and notifications. Returns ErrSkillNotFound for unknown ids.
	SkillName(ctx context.Context, skillID int64) (string, error)
}

// NotificationDispatcher receives fire-and-forget events after a successful
// transition or transfer. Implementations must never block the caller; the
// core does not depend on dispatch succeeding.
type NotificationDispatcher interface {
	ExchangeRequested(ex *Exchange)
	ExchangeStatusChanged(ex *Exchange, previous ExchangeStatus)
	CreditTransferred(userID, amount int64, reason string)
}

// HealthSink receives the sweeper's per-run reports. A consumer considers
// the sweeper unhealthy when no successful run arrived within its timeout
// window or the last report was an error.
type HealthSink interface {
	ReportSuccess()
	ReportError(detail string)
}

// PresenceTracker is the online-presence bookkeeping collaborator: which
// users are connected, and which connection belongs to whom.
type PresenceTracker interface {
	Connected(userID int64, connID string)
	// Disconnected returns the owning user and whether that user has now
	// gone fully offline.
	Disconnected(connID string) (userID int64, offline bool)
	IsOnline(userID int64) bool
	OnlineUsers() []int64
}
