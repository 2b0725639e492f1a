package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// Messages stores ciphertext records in memory, grouped by conversation.
type Messages struct {
	mu     sync.RWMutex
	byConv map[domain.ConversationID][]domain.Message
	ids    map[domain.MessageID]struct{}
}

// NewMessages returns an empty message store.
func NewMessages() *Messages {
	return &Messages{
		byConv: make(map[domain.ConversationID][]domain.Message),
		ids:    make(map[domain.MessageID]struct{}),
	}
}

func (s *Messages) InsertMessage(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[m.ID]; dup {
		return types.Conflict("memory.InsertMessage", "message id already exists")
	}
	s.ids[m.ID] = struct{}{}
	s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], m)
	return nil
}

func (s *Messages) QueryMessages(
	_ context.Context,
	id domain.ConversationID,
	q domain.MessageQuery,
	now time.Time,
) ([]domain.Message, error) {
	s.mu.RLock()
	var out []domain.Message
	for _, m := range s.byConv[id] {
		if matches(m, q, now) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Messages) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for conv, msgs := range s.byConv {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.Expired(now) {
				delete(s.ids, m.ID)
				removed++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			delete(s.byConv, conv)
			continue
		}
		s.byConv[conv] = kept
	}
	return removed, nil
}

func matches(m domain.Message, q domain.MessageQuery, now time.Time) bool {
	if m.Expired(now) {
		return false
	}
	if q.SenderID != "" && m.SenderID != q.SenderID {
		return false
	}
	if !q.From.IsZero() && m.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && m.CreatedAt.After(q.To) {
		return false
	}
	return true
}

var _ domain.MessageRepository = (*Messages)(nil)
