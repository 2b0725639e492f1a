package message

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/metrics"
)

const (
	// DefaultQueryLimit applies when a query does not set a limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps any single query.
	MaxQueryLimit = 500

	ivSize  = 12
	tagSize = 16
)

// Service implements the message store on top of a repository.
type Service struct {
	directory     domain.ConversationDirectory
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	metrics       *metrics.Collector
	logger        *zap.Logger
	now           func() time.Time
}

// New constructs a message Service.
func New(
	directory domain.ConversationDirectory,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	m *metrics.Collector,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		directory:     directory,
		conversations: conversations,
		messages:      messages,
		metrics:       m,
		logger:        logger.With(zap.String("component", "messages")),
		now:           time.Now,
	}
}

// WithClock replaces the time source. It is meant for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Persist validates and stores an encrypted message sent by p.
func (s *Service) Persist(
	ctx context.Context,
	p domain.Principal,
	req domain.PersistRequest,
) (domain.Message, error) {
	m, err := s.persist(ctx, p, req)
	if err != nil {
		s.metrics.MessageRejected(string(types.KindOf(err)))
		return domain.Message{}, err
	}
	s.metrics.MessagePersisted()
	return m, nil
}

func (s *Service) persist(
	ctx context.Context,
	p domain.Principal,
	req domain.PersistRequest,
) (domain.Message, error) {
	const op = "message.Persist"

	conv, err := s.directory.EnsureAccess(ctx, p, req.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	if err := validatePayload(op, req); err != nil {
		return domain.Message{}, err
	}

	members, err := s.directory.ResolveAllowedParticipants(ctx, conv)
	if err != nil {
		return domain.Message{}, err
	}
	required := make(map[domain.UserID]struct{}, len(members))
	isMember := false
	for _, id := range members {
		if id == p.UserID {
			isMember = true
			continue
		}
		required[id] = struct{}{}
	}
	if !isMember {
		return domain.Message{}, types.AccessDenied(op, "sender is not part of the conversation")
	}
	if err := checkRecipients(op, req.Recipients, required); err != nil {
		return domain.Message{}, err
	}
	if err := checkEnvelopes(op, req.Envelopes, required, p.UserID); err != nil {
		return domain.Message{}, err
	}

	policy := conv.RetentionPolicy
	ttl, ok := policy.Duration()
	if !ok {
		policy = types.DefaultRetention
		ttl, _ = policy.Duration()
	}
	now := s.now().UTC()

	m := domain.Message{
		ID:              domain.MessageID(uuid.NewString()),
		ConversationID:  conv.ID,
		SenderID:        p.UserID,
		Recipients:      append([]domain.UserID(nil), req.Recipients...),
		Ciphertext:      req.Ciphertext,
		IV:              req.IV,
		AuthTag:         req.AuthTag,
		Envelopes:       req.Envelopes,
		SenderPublicKey: req.SenderPublicKey,
		RetentionPolicy: policy,
		ExpiresAt:       now.Add(ttl),
		CreatedAt:       now,
	}
	if err := s.messages.InsertMessage(ctx, m); err != nil {
		return domain.Message{}, err
	}
	if err := s.conversations.TouchLastMessage(ctx, conv.ID, now); err != nil {
		s.logger.Warn("touch lastMessageAt failed",
			zap.String("conversationID", conv.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Debug("message persisted",
		zap.String("conversationID", conv.ID.String()),
		zap.String("messageID", m.ID.String()),
		zap.String("senderID", p.UserID.String()),
		zap.Int("recipients", len(m.Recipients)),
	)
	return m, nil
}

// Query returns non-expired messages of a conversation, oldest first.
// Access is not checked here; see History.
func (s *Service) Query(
	ctx context.Context,
	id domain.ConversationID,
	q domain.MessageQuery,
) ([]domain.Message, error) {
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, types.Validation("message.Query", "'to' must not be before 'from'")
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		q.Limit = MaxQueryLimit
	}
	return s.messages.QueryMessages(ctx, id, q, s.now().UTC())
}

// History checks access for p, then runs Query.
func (s *Service) History(
	ctx context.Context,
	p domain.Principal,
	id domain.ConversationID,
	q domain.MessageQuery,
) ([]domain.Message, error) {
	if _, err := s.directory.EnsureAccess(ctx, p, id); err != nil {
		return nil, err
	}
	return s.Query(ctx, id, q)
}

// Export returns the conversation and every message still visible in it.
func (s *Service) Export(
	ctx context.Context,
	p domain.Principal,
	id domain.ConversationID,
) (domain.ConversationExport, error) {
	conv, err := s.directory.EnsureAccess(ctx, p, id)
	if err != nil {
		return domain.ConversationExport{}, err
	}
	now := s.now().UTC()
	var (
		all    []domain.Message
		seen   = make(map[domain.MessageID]struct{})
		cursor time.Time
	)
	// From is inclusive, so each page overlaps the last timestamp of the
	// previous one; overlap is dropped by id.
	for {
		page, err := s.messages.QueryMessages(ctx, id, domain.MessageQuery{From: cursor, Limit: MaxQueryLimit}, now)
		if err != nil {
			return domain.ConversationExport{}, err
		}
		fresh := 0
		for _, m := range page {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			all = append(all, m)
			fresh++
		}
		if fresh == 0 || len(page) < MaxQueryLimit {
			break
		}
		cursor = page[len(page)-1].CreatedAt
	}
	return domain.ConversationExport{Conversation: conv, Messages: all, ExportedAt: now}, nil
}

// PurgeExpired deletes every message whose expiry has passed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.messages.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.metrics.Purged(n)
	if n > 0 {
		s.logger.Info("expired messages purged", zap.Int64("count", n))
	}
	return n, nil
}

func validatePayload(op string, req domain.PersistRequest) error {
	if req.Ciphertext == "" || req.IV == "" || req.AuthTag == "" {
		return types.Validation(op, "ciphertext, iv and authTag are required")
	}
	if req.SenderPublicKey == "" {
		return types.Validation(op, "senderPublicKey is required")
	}
	if _, err := base64.StdEncoding.DecodeString(req.Ciphertext); err != nil {
		return types.Validation(op, "ciphertext is not valid base64")
	}
	if err := checkBoxField(req.IV, ivSize); err != nil {
		return types.Validation(op, "iv must be 12 base64-encoded bytes")
	}
	if err := checkBoxField(req.AuthTag, tagSize); err != nil {
		return types.Validation(op, "authTag must be 16 base64-encoded bytes")
	}
	if _, err := types.ParseX25519Public(req.SenderPublicKey); err != nil {
		return types.Validation(op, "senderPublicKey is malformed")
	}
	return nil
}

func checkBoxField(s string, size int) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != size {
		return errSize
	}
	return nil
}

// checkRecipients requires recipients to equal required exactly.
func checkRecipients(op string, recipients []domain.UserID, required map[domain.UserID]struct{}) error {
	if len(recipients) == 0 {
		return types.Validation(op, "recipients are required")
	}
	seen := make(map[domain.UserID]struct{}, len(recipients))
	for _, id := range recipients {
		if _, dup := seen[id]; dup {
			return types.Validation(op, "duplicate recipient "+id.String())
		}
		seen[id] = struct{}{}
		if _, ok := required[id]; !ok {
			return types.Validation(op, "recipient "+id.String()+" is not a member of this conversation")
		}
	}
	for id := range required {
		if _, ok := seen[id]; !ok {
			return types.Validation(op, "missing recipient "+id.String())
		}
	}
	return nil
}

// checkEnvelopes requires one envelope per recipient plus the sender and no others.
func checkEnvelopes(
	op string,
	envelopes map[domain.UserID]domain.SealedBox,
	required map[domain.UserID]struct{},
	sender domain.UserID,
) error {
	if _, ok := envelopes[sender]; !ok {
		return types.Validation(op, "missing envelope for sender")
	}
	for id := range required {
		if _, ok := envelopes[id]; !ok {
			return types.Validation(op, "missing envelope for "+id.String())
		}
	}
	for id, box := range envelopes {
		if _, ok := required[id]; !ok && id != sender {
			return types.Validation(op, "envelope for non-member "+id.String())
		}
		if box.Ciphertext == "" || box.IV == "" || box.AuthTag == "" {
			return types.Validation(op, "envelope for "+id.String()+" is incomplete")
		}
	}
	return nil
}
