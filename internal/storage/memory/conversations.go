package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// Conversations stores conversation records in memory.
type Conversations struct {
	mu    sync.RWMutex
	byID  map[domain.ConversationID]domain.Conversation
	pairs map[[2]domain.UserID]domain.ConversationID
}

// NewConversations returns an empty conversation store.
func NewConversations() *Conversations {
	return &Conversations{
		byID:  make(map[domain.ConversationID]domain.Conversation),
		pairs: make(map[[2]domain.UserID]domain.ConversationID),
	}
}

// CreateConversation inserts c. A second direct conversation for the same
// unordered pair is rejected.
func (s *Conversations) CreateConversation(_ context.Context, c domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[c.ID]; exists {
		return types.Conflict("memory.CreateConversation", "conversation id already exists")
	}
	if c.Type == types.ConversationDirect && len(c.Participants) == 2 {
		key := pairKey(c.Participants[0], c.Participants[1])
		if _, exists := s.pairs[key]; exists {
			return types.Conflict("memory.CreateConversation", "direct conversation already exists")
		}
		s.pairs[key] = c.ID
	}
	s.byID[c.ID] = clone(c)
	return nil
}

func (s *Conversations) GetConversation(
	_ context.Context,
	id domain.ConversationID,
) (domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	return clone(c), ok, nil
}

func (s *Conversations) FindDirect(
	_ context.Context,
	a, b domain.UserID,
) (domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.pairs[pairKey(a, b)]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return clone(s.byID[id]), true, nil
}

func (s *Conversations) ListDirect(_ context.Context, user domain.UserID) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Conversation
	for _, c := range s.byID {
		if c.Type == types.ConversationDirect && c.HasParticipant(user) {
			out = append(out, clone(c))
		}
	}
	sortByActivity(out)
	return out, nil
}

func (s *Conversations) ListTeam(
	_ context.Context,
	teams []domain.TeamID,
	all bool,
) ([]domain.Conversation, error) {
	want := make(map[domain.TeamID]bool, len(teams))
	for _, t := range teams {
		want[t] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Conversation
	for _, c := range s.byID {
		if c.Type == types.ConversationTeam && (all || want[c.TeamID]) {
			out = append(out, clone(c))
		}
	}
	sortByActivity(out)
	return out, nil
}

func (s *Conversations) UpdateRetention(
	_ context.Context,
	id domain.ConversationID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return domain.Conversation{}, types.NotFound("memory.UpdateRetention", "conversation not found")
	}
	c.RetentionPolicy = policy
	s.byID[id] = c
	return clone(c), nil
}

func (s *Conversations) TouchLastMessage(_ context.Context, id domain.ConversationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return types.NotFound("memory.TouchLastMessage", "conversation not found")
	}
	if c.LastMessageAt == nil || at.After(*c.LastMessageAt) {
		t := at
		c.LastMessageAt = &t
		s.byID[id] = c
	}
	return nil
}

func pairKey(a, b domain.UserID) [2]domain.UserID {
	if b < a {
		a, b = b, a
	}
	return [2]domain.UserID{a, b}
}

func clone(c domain.Conversation) domain.Conversation {
	if c.Participants != nil {
		c.Participants = append([]domain.UserID(nil), c.Participants...)
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		c.LastMessageAt = &t
	}
	return c
}

// sortByActivity orders by most recent message, then newest creation.
func sortByActivity(cs []domain.Conversation) {
	sort.Slice(cs, func(i, j int) bool {
		ai, aj := activity(cs[i]), activity(cs[j])
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return cs[i].ID < cs[j].ID
	})
}

func activity(c domain.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

var _ domain.ConversationRepository = (*Conversations)(nil)
