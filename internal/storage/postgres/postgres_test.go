package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"courier/internal/domain"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgresql+asyncpg://u:p@db/courier", "postgresql://u:p@db/courier"},
		{"  postgres+pgx://db/courier ", "postgres://db/courier"},
		{"postgres://db/courier", "postgres://db/courier"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDSN(tt.in))
	}
}

func TestBuildMessageQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no filters", func(t *testing.T) {
		sql, args := buildMessageQuery("c1", domain.MessageQuery{}, now)
		assert.Contains(t, sql, "conversation_id = $1 AND expires_at > $2")
		assert.True(t, strings.HasSuffix(sql, "ORDER BY created_at, id"))
		assert.Equal(t, []any{"c1", now}, args)
	})

	t.Run("all filters", func(t *testing.T) {
		q := domain.MessageQuery{
			SenderID: "alice",
			From:     now.Add(-time.Hour),
			To:       now,
			Limit:    10,
		}
		sql, args := buildMessageQuery("c1", q, now)
		assert.Contains(t, sql, "sender_id = $3")
		assert.Contains(t, sql, "created_at >= $4")
		assert.Contains(t, sql, "created_at <= $5")
		assert.True(t, strings.HasSuffix(sql, "LIMIT $6"))
		assert.Equal(t, []any{"c1", now, "alice", q.From, q.To, 10}, args)
	})

	t.Run("limit only", func(t *testing.T) {
		sql, args := buildMessageQuery("c1", domain.MessageQuery{Limit: 5}, now)
		assert.True(t, strings.HasSuffix(sql, "LIMIT $3"))
		assert.Len(t, args, 3)
	})
}

func TestOrderedPair(t *testing.T) {
	lo, hi := orderedPair("bob", "alice")
	assert.Equal(t, domain.UserID("alice"), lo)
	assert.Equal(t, domain.UserID("bob"), hi)

	lo, hi = orderedPair("alice", "bob")
	assert.Equal(t, domain.UserID("alice"), lo)
	assert.Equal(t, domain.UserID("bob"), hi)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestUserIDConversion(t *testing.T) {
	assert.Nil(t, userStrings(nil))
	assert.Nil(t, toUserIDs(nil))
	ids := []domain.UserID{"alice", "bob"}
	assert.Equal(t, ids, toUserIDs(userStrings(ids)))
}

func TestSchema_DirectPairIsUnique(t *testing.T) {
	var found bool
	for _, stmt := range schema {
		if strings.Contains(stmt, "conversations_direct_pair") {
			found = true
			assert.Contains(t, stmt, "UNIQUE")
			assert.Contains(t, stmt, "WHERE type = 'direct'")
		}
		assert.Contains(t, stmt, "IF NOT EXISTS", "migrations must be re-runnable")
	}
	assert.True(t, found)
}
