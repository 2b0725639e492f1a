// Package presence tracks which users have at least one open connection.
//
// Tracker is the single writer of the online set. Connect and Disconnect
// report a Change only when a user's connection count moves to or from zero,
// together with the full online set as it stood after that change.
package presence

import (
	"sort"
	"sync"

	"courier/internal/domain"
)

// Change describes an online/offline transition of one user.
type Change struct {
	UserID domain.UserID
	Online bool
	// Snapshot is the sorted online set right after the transition.
	Snapshot []domain.UserID
}

// Tracker maps users to their active connection ids.
type Tracker struct {
	mu    sync.Mutex
	conns map[domain.UserID]map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conns: make(map[domain.UserID]map[string]struct{})}
}

// Connect registers connID for user. It returns a Change when the user was
// previously offline.
func (t *Tracker) Connect(user domain.UserID, connID string) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		set = make(map[string]struct{})
		t.conns[user] = set
	}
	set[connID] = struct{}{}
	if ok {
		return Change{}, false
	}
	return Change{UserID: user, Online: true, Snapshot: t.snapshotLocked()}, true
}

// Disconnect removes connID for user. It returns a Change when that was the
// user's last connection. Unknown ids are ignored.
func (t *Tracker) Disconnect(user domain.UserID, connID string) (Change, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.conns[user]
	if !ok {
		return Change{}, false
	}
	if _, known := set[connID]; !known {
		return Change{}, false
	}
	delete(set, connID)
	if len(set) > 0 {
		return Change{}, false
	}
	delete(t.conns, user)
	return Change{UserID: user, Online: false, Snapshot: t.snapshotLocked()}, true
}

// IsOnline reports whether user has any open connection.
func (t *Tracker) IsOnline(user domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[user]) > 0
}

// Online returns the sorted set of online users.
func (t *Tracker) Online() []domain.UserID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Connections returns the number of open connections of user.
func (t *Tracker) Connections(user domain.UserID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns[user])
}

func (t *Tracker) snapshotLocked() []domain.UserID {
	out := make([]domain.UserID, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
