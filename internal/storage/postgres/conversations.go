package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

const conversationColumns = `id, type, participants, team_id, retention_policy, last_message_at, created_at`

// Conversations is a ConversationRepository backed by PostgreSQL.
type Conversations struct {
	pool *pgxpool.Pool
}

// NewConversations returns a repository using pool.
func NewConversations(pool *pgxpool.Pool) *Conversations {
	return &Conversations{pool: pool}
}

func (r *Conversations) CreateConversation(ctx context.Context, c domain.Conversation) error {
	const op = "postgres.CreateConversation"

	var team *string
	if c.TeamID != "" {
		s := c.TeamID.String()
		team = &s
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID.String(), string(c.Type), userStrings(c.Participants), team,
		string(c.RetentionPolicy), c.LastMessageAt, c.CreatedAt)
	if isUniqueViolation(err) {
		return types.NewError(types.KindConflict, op, "conversation already exists", err)
	}
	return err
}

func (r *Conversations) GetConversation(
	ctx context.Context,
	id domain.ConversationID,
) (domain.Conversation, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id.String())
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return c, true, nil
}

func (r *Conversations) FindDirect(
	ctx context.Context,
	a, b domain.UserID,
) (domain.Conversation, bool, error) {
	lo, hi := orderedPair(a, b)
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE type = 'direct'
		  AND LEAST(participants[1], participants[2]) = $1
		  AND GREATEST(participants[1], participants[2]) = $2
	`, lo.String(), hi.String())
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return c, true, nil
}

func (r *Conversations) ListDirect(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE type = 'direct' AND $1 = ANY (participants)
		ORDER BY COALESCE(last_message_at, created_at) DESC, id
	`, user.String())
	if err != nil {
		return nil, err
	}
	return collectConversations(rows)
}

func (r *Conversations) ListTeam(
	ctx context.Context,
	teams []domain.TeamID,
	all bool,
) ([]domain.Conversation, error) {
	if !all && len(teams) == 0 {
		return nil, nil
	}
	ids := make([]string, len(teams))
	for i, t := range teams {
		ids[i] = t.String()
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE type = 'team' AND ($2 OR team_id = ANY ($1))
		ORDER BY COALESCE(last_message_at, created_at) DESC, id
	`, ids, all)
	if err != nil {
		return nil, err
	}
	return collectConversations(rows)
}

func (r *Conversations) UpdateRetention(
	ctx context.Context,
	id domain.ConversationID,
	policy domain.RetentionPolicy,
) (domain.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations SET retention_policy = $2
		WHERE id = $1
		RETURNING `+conversationColumns, id.String(), string(policy))
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, types.NotFound("postgres.UpdateRetention", "conversation not found")
	}
	return c, err
}

// TouchLastMessage moves last_message_at forward; it never moves it back.
func (r *Conversations) TouchLastMessage(ctx context.Context, id domain.ConversationID, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return types.NotFound("postgres.TouchLastMessage", "conversation not found")
	}
	return nil
}

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var (
		c            domain.Conversation
		id, kind     string
		participants []string
		team         *string
		policy       string
		last         *time.Time
	)
	if err := row.Scan(&id, &kind, &participants, &team, &policy, &last, &c.CreatedAt); err != nil {
		return domain.Conversation{}, err
	}
	c.ID = domain.ConversationID(id)
	c.Type = types.ConversationType(kind)
	c.Participants = toUserIDs(participants)
	if team != nil {
		c.TeamID = domain.TeamID(*team)
	}
	c.RetentionPolicy = domain.RetentionPolicy(policy)
	if last != nil {
		t := last.UTC()
		c.LastMessageAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func collectConversations(rows pgx.Rows) ([]domain.Conversation, error) {
	defer rows.Close()
	var out []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// orderedPair returns a and b in ascending order, matching the unique index.
func orderedPair(a, b domain.UserID) (domain.UserID, domain.UserID) {
	if b < a {
		return b, a
	}
	return a, b
}

func userStrings(ids []domain.UserID) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func toUserIDs(ss []string) []domain.UserID {
	if ss == nil {
		return nil
	}
	out := make([]domain.UserID, len(ss))
	for i, s := range ss {
		out[i] = domain.UserID(s)
	}
	return out
}

var _ domain.ConversationRepository = (*Conversations)(nil)
