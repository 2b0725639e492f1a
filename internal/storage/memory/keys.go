package memory

import (
	"context"
	"sync"

	"courier/internal/domain"
)

// Keys is an in-memory public-key directory.
type Keys struct {
	mu   sync.RWMutex
	recs map[domain.UserID]domain.PublicKeyRecord
}

// NewKeys returns an empty key directory.
func NewKeys() *Keys {
	return &Keys{recs: make(map[domain.UserID]domain.PublicKeyRecord)}
}

// RegisterKey stores rec, replacing any earlier key of the same user.
func (s *Keys) RegisterKey(_ context.Context, rec domain.PublicKeyRecord) error {
	s.mu.Lock()
	s.recs[rec.UserID] = rec
	s.mu.Unlock()
	return nil
}

func (s *Keys) LookupKey(_ context.Context, user domain.UserID) (domain.PublicKeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[user]
	return rec, ok, nil
}

var _ domain.KeyDirectory = (*Keys)(nil)
