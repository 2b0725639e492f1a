package directory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// Service implements the conversation directory.
type Service struct {
	conversations domain.ConversationRepository
	roster        domain.TeamRoster
	keys          domain.KeyDirectory
	logger        *zap.Logger
	now           func() time.Time
}

// New returns a directory backed by the given repository and roster.
func New(
	conversations domain.ConversationRepository,
	roster domain.TeamRoster,
	keys domain.KeyDirectory,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		conversations: conversations,
		roster:        roster,
		keys:          keys,
		logger:        logger.With(zap.String("component", "directory")),
		now:           time.Now,
	}
}

// EnsureAccess loads the conversation and checks that p may use it.
func (s *Service) EnsureAccess(
	ctx context.Context,
	p domain.Principal,
	id domain.ConversationID,
) (domain.Conversation, error) {
	const op = "directory.EnsureAccess"

	if id == "" {
		return domain.Conversation{}, types.Validation(op, "conversation id is required")
	}
	c, ok, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok {
		return domain.Conversation{}, types.NotFound(op, "conversation not found")
	}

	switch c.Type {
	case types.ConversationDirect:
		if c.HasParticipant(p.UserID) {
			return c, nil
		}
	case types.ConversationTeam:
		members, err := s.ResolveAllowedParticipants(ctx, c)
		if err != nil {
			return domain.Conversation{}, err
		}
		if containsUser(members, p.UserID) {
			return c, nil
		}
	}

	s.logger.Debug("access denied",
		zap.String("userID", p.UserID.String()),
		zap.String("conversationID", id.String()),
	)
	return domain.Conversation{}, types.AccessDenied(op, "not a member of this conversation")
}

// ResolveAllowedParticipants returns the current membership of c.
func (s *Service) ResolveAllowedParticipants(
	ctx context.Context,
	c domain.Conversation,
) ([]domain.UserID, error) {
	switch c.Type {
	case types.ConversationDirect:
		return append([]domain.UserID(nil), c.Participants...), nil
	case types.ConversationTeam:
		members, err := s.roster.TeamMembers(ctx, c.TeamID)
		if err != nil {
			return nil, err
		}
		admins, err := s.roster.Admins(ctx)
		if err != nil {
			return nil, err
		}
		return union(members, admins), nil
	}
	return nil, types.Validation("directory.ResolveAllowedParticipants", "unknown conversation type")
}

// isAdmin reports whether id is in the roster's global admin set. The roster
// is the only admin source; a token role alone never widens membership.
func (s *Service) isAdmin(ctx context.Context, id domain.UserID) (bool, error) {
	admins, err := s.roster.Admins(ctx)
	if err != nil {
		return false, err
	}
	return containsUser(admins, id), nil
}

// CreateDirect returns the canonical direct conversation between p and peer,
// creating it on first use. created reports whether a new record was made.
func (s *Service) CreateDirect(
	ctx context.Context,
	p domain.Principal,
	peer domain.UserID,
	policy domain.RetentionPolicy,
) (c domain.Conversation, created bool, err error) {
	const op = "directory.CreateDirect"

	if peer == "" {
		return domain.Conversation{}, false, types.Validation(op, "participant id is required")
	}
	if peer == p.UserID {
		return domain.Conversation{}, false, types.Validation(op, "cannot start a direct conversation with yourself")
	}
	if policy, err = normalisePolicy(op, policy); err != nil {
		return domain.Conversation{}, false, err
	}

	if existing, ok, err := s.conversations.FindDirect(ctx, p.UserID, peer); err != nil {
		return domain.Conversation{}, false, err
	} else if ok {
		return existing, false, nil
	}

	c = domain.Conversation{
		ID:              domain.ConversationID(uuid.NewString()),
		Type:            types.ConversationDirect,
		Participants:    []domain.UserID{p.UserID, peer},
		RetentionPolicy: policy,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.conversations.CreateConversation(ctx, c); err != nil {
		if !types.IsKind(err, types.KindConflict) {
			return domain.Conversation{}, false, err
		}
		// Lost a race with a concurrent create for the same pair.
		existing, ok, ferr := s.conversations.FindDirect(ctx, p.UserID, peer)
		if ferr != nil {
			return domain.Conversation{}, false, ferr
		}
		if !ok {
			return domain.Conversation{}, false, err
		}
		return existing, false, nil
	}

	s.logger.Info("direct conversation created",
		zap.String("conversationID", c.ID.String()),
		zap.String("userID", p.UserID.String()),
		zap.String("peerID", peer.String()),
	)
	return c, true, nil
}

// CreateTeam creates a conversation for team. Only members of the team or
// admins may do so.
func (s *Service) CreateTeam(
	ctx context.Context,
	p domain.Principal,
	team domain.TeamID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	const op = "directory.CreateTeam"

	if team == "" {
		return domain.Conversation{}, types.Validation(op, "team id is required")
	}
	policy, err := normalisePolicy(op, policy)
	if err != nil {
		return domain.Conversation{}, err
	}

	members, err := s.roster.TeamMembers(ctx, team)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !containsUser(members, p.UserID) {
		admin, err := s.isAdmin(ctx, p.UserID)
		if err != nil {
			return domain.Conversation{}, err
		}
		if !admin {
			return domain.Conversation{}, types.AccessDenied(op, "not a member of this team")
		}
	}

	c := domain.Conversation{
		ID:              domain.ConversationID(uuid.NewString()),
		Type:            types.ConversationTeam,
		TeamID:          team,
		RetentionPolicy: policy,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.conversations.CreateConversation(ctx, c); err != nil {
		return domain.Conversation{}, err
	}
	s.logger.Info("team conversation created",
		zap.String("conversationID", c.ID.String()),
		zap.String("teamID", team.String()),
	)
	return c, nil
}

// UpdateRetention changes the policy applied to future messages only.
func (s *Service) UpdateRetention(
	ctx context.Context,
	p domain.Principal,
	id domain.ConversationID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	const op = "directory.UpdateRetention"

	if !policy.Valid() {
		return domain.Conversation{}, types.Validation(op, "retention policy must be 7d or 30d")
	}
	if _, err := s.EnsureAccess(ctx, p, id); err != nil {
		return domain.Conversation{}, err
	}
	c, err := s.conversations.UpdateRetention(ctx, id, policy)
	if err != nil {
		return domain.Conversation{}, err
	}
	s.logger.Info("retention updated",
		zap.String("conversationID", id.String()),
		zap.String("policy", string(policy)),
	)
	return c, nil
}

// ListForUser returns every conversation p can access, most recent first.
func (s *Service) ListForUser(ctx context.Context, p domain.Principal) ([]domain.Conversation, error) {
	direct, err := s.conversations.ListDirect(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	isAdmin, err := s.isAdmin(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	var teams []domain.TeamID
	if !isAdmin {
		if teams, err = s.roster.TeamsOf(ctx, p.UserID); err != nil {
			return nil, err
		}
	}
	team, err := s.conversations.ListTeam(ctx, teams, isAdmin)
	if err != nil {
		return nil, err
	}

	out := append(direct, team...)
	sort.SliceStable(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out, nil
}

// Participants returns the live membership of a conversation with each
// member's registered public key.
func (s *Service) Participants(
	ctx context.Context,
	p domain.Principal,
	id domain.ConversationID,
) ([]domain.Participant, error) {
	c, err := s.EnsureAccess(ctx, p, id)
	if err != nil {
		return nil, err
	}
	members, err := s.ResolveAllowedParticipants(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Participant, 0, len(members))
	for _, m := range members {
		part := domain.Participant{UserID: m}
		rec, ok, err := s.keys.LookupKey(ctx, m)
		if err != nil {
			return nil, err
		}
		if ok {
			part.DeviceID = rec.DeviceID
			part.PublicKey = rec.PublicKey
			part.Algorithm = rec.Algorithm
		}
		out = append(out, part)
	}
	return out, nil
}

func normalisePolicy(op string, policy domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	if policy == "" {
		return types.DefaultRetention, nil
	}
	if !policy.Valid() {
		return "", types.Validation(op, "retention policy must be 7d or 30d")
	}
	return policy, nil
}

func union(a, b []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(a)+len(b))
	out := make([]domain.UserID, 0, len(a)+len(b))
	for _, list := range [][]domain.UserID{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func containsUser(list []domain.UserID, u domain.UserID) bool {
	for _, id := range list {
		if id == u {
			return true
		}
	}
	return false
}

func lastActivity(c domain.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

var _ domain.ConversationDirectory = (*Service)(nil)
