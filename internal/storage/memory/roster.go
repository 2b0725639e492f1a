package memory

import (
	"context"
	"sort"
	"sync"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// Roster is a mutable in-memory team roster and admin set.
type Roster struct {
	mu     sync.RWMutex
	teams  map[domain.TeamID]map[domain.UserID]struct{}
	admins map[domain.UserID]struct{}
}

// NewRoster builds a roster from static team membership and admin lists.
func NewRoster(teams map[domain.TeamID][]domain.UserID, admins []domain.UserID) *Roster {
	r := &Roster{
		teams:  make(map[domain.TeamID]map[domain.UserID]struct{}),
		admins: make(map[domain.UserID]struct{}),
	}
	for team, members := range teams {
		r.SetTeam(team, members...)
	}
	for _, a := range admins {
		r.admins[a] = struct{}{}
	}
	return r
}

// SetTeam replaces the membership of team.
func (r *Roster) SetTeam(team domain.TeamID, members ...domain.UserID) {
	set := make(map[domain.UserID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	r.mu.Lock()
	r.teams[team] = set
	r.mu.Unlock()
}

// AddMember adds user to team, creating the team if needed.
func (r *Roster) AddMember(team domain.TeamID, user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.teams[team] == nil {
		r.teams[team] = make(map[domain.UserID]struct{})
	}
	r.teams[team][user] = struct{}{}
}

// RemoveMember drops user from team.
func (r *Roster) RemoveMember(team domain.TeamID, user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.teams[team], user)
}

// SetAdmin grants or revokes the admin role.
func (r *Roster) SetAdmin(user domain.UserID, admin bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if admin {
		r.admins[user] = struct{}{}
	} else {
		delete(r.admins, user)
	}
}

func (r *Roster) TeamMembers(_ context.Context, team domain.TeamID) ([]domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.teams[team]
	if !ok {
		return nil, types.NotFound("memory.TeamMembers", "team not found")
	}
	return sortedIDs(set), nil
}

func (r *Roster) Admins(_ context.Context) ([]domain.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.admins), nil
}

func (r *Roster) TeamsOf(_ context.Context, user domain.UserID) ([]domain.TeamID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.TeamID
	for team, set := range r.teams {
		if _, ok := set[user]; ok {
			out = append(out, team)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func sortedIDs(set map[domain.UserID]struct{}) []domain.UserID {
	out := make([]domain.UserID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ domain.TeamRoster = (*Roster)(nil)
