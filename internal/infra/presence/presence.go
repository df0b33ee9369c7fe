// Package presence tracks which users are online. It is plain lock-guarded
// bookkeeping over two maps (user to open connection ids, connection to
// owning user) kept behind domain.PresenceTracker so nothing in the core
// touches shared state directly.
package presence

import (
	"sort"
	"sync"

	"github.com/skillforge-network/skillforge/internal/infra/observability"
)

// Tracker implements domain.PresenceTracker.
type Tracker struct {
	mu     sync.RWMutex
	byUser map[int64]map[string]struct{}
	byConn map[string]int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byUser: make(map[int64]map[string]struct{}),
		byConn: make(map[string]int64),
	}
}

// Connected registers a connection for a user. A user can hold several
// connections (multiple tabs, devices).
func (t *Tracker) Connected(userID int64, connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byUser[userID] == nil {
		t.byUser[userID] = make(map[string]struct{})
	}
	t.byUser[userID][connID] = struct{}{}
	t.byConn[connID] = userID
	observability.OnlineUsers.Set(float64(len(t.byUser)))
}

// Disconnected removes a connection and reports whether its owner has now
// gone fully offline. Unknown connection ids are a no-op.
func (t *Tracker) Disconnected(connID string) (userID int64, offline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	userID, ok := t.byConn[connID]
	if !ok {
		return 0, false
	}
	delete(t.byConn, connID)

	conns := t.byUser[userID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(t.byUser, userID)
		offline = true
	}
	observability.OnlineUsers.Set(float64(len(t.byUser)))
	return userID, offline
}

// IsOnline reports whether the user has at least one live connection.
func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser[userID]) > 0
}

// OnlineUsers returns the ids of all connected users, sorted for stable
// output.
func (t *Tracker) OnlineUsers() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.byUser))
	for id := range t.byUser {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Connections returns the user's live connection ids.
func (t *Tracker) Connections(userID int64) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]string, 0, len(t.byUser[userID]))
	for id := range t.byUser[userID] {
		conns = append(conns, id)
	}
	return conns
}
