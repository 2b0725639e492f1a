package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

const messageColumns = `id, conversation_id, sender_id, recipients, ciphertext, iv, auth_tag,
	envelopes, sender_public_key, retention_policy, expires_at, created_at`

// Messages is a MessageRepository backed by PostgreSQL.
type Messages struct {
	pool *pgxpool.Pool
}

// NewMessages returns a repository using pool.
func NewMessages(pool *pgxpool.Pool) *Messages {
	return &Messages{pool: pool}
}

func (r *Messages) InsertMessage(ctx context.Context, m domain.Message) error {
	const op = "postgres.InsertMessage"

	envelopes, err := json.Marshal(m.Envelopes)
	if err != nil {
		return fmt.Errorf("%s: marshal envelopes: %w", op, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID.String(), m.ConversationID.String(), m.SenderID.String(), userStrings(m.Recipients),
		m.Ciphertext, m.IV, m.AuthTag, envelopes, m.SenderPublicKey,
		string(m.RetentionPolicy), m.ExpiresAt, m.CreatedAt)
	if isUniqueViolation(err) {
		return types.NewError(types.KindConflict, op, "message id already exists", err)
	}
	return err
}

func (r *Messages) QueryMessages(
	ctx context.Context,
	id domain.ConversationID,
	q domain.MessageQuery,
	now time.Time,
) ([]domain.Message, error) {
	sql, args := buildMessageQuery(id, q, now)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Messages) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// buildMessageQuery renders the history query for q. Messages whose expiry
// is at or before now are never returned.
func buildMessageQuery(id domain.ConversationID, q domain.MessageQuery, now time.Time) (string, []any) {
	var b strings.Builder
	args := []any{id.String(), now}
	b.WriteString(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 AND expires_at > $2`)

	if q.SenderID != "" {
		args = append(args, q.SenderID.String())
		fmt.Fprintf(&b, ` AND sender_id = $%d`, len(args))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		fmt.Fprintf(&b, ` AND created_at >= $%d`, len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		fmt.Fprintf(&b, ` AND created_at <= $%d`, len(args))
	}
	b.WriteString(` ORDER BY created_at, id`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}
	return b.String(), args
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m                        domain.Message
		id, conv, sender, policy string
		recipients               []string
		envelopes                []byte
	)
	err := row.Scan(&id, &conv, &sender, &recipients, &m.Ciphertext, &m.IV, &m.AuthTag,
		&envelopes, &m.SenderPublicKey, &policy, &m.ExpiresAt, &m.CreatedAt)
	if err != nil {
		return domain.Message{}, err
	}
	if err := json.Unmarshal(envelopes, &m.Envelopes); err != nil {
		return domain.Message{}, fmt.Errorf("postgres: decode envelopes of %s: %w", id, err)
	}
	m.ID = domain.MessageID(id)
	m.ConversationID = domain.ConversationID(conv)
	m.SenderID = domain.UserID(sender)
	m.Recipients = toUserIDs(recipients)
	m.RetentionPolicy = domain.RetentionPolicy(policy)
	m.ExpiresAt = m.ExpiresAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

var _ domain.MessageRepository = (*Messages)(nil)
