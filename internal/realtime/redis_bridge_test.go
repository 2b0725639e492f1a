package realtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/realtime"
)

func TestBridgeMessage_PreservesEnvelopes(t *testing.T) {
	m := domain.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       "alice",
		Recipients:     []domain.UserID{"bob"},
		Ciphertext:     "Y3Q=",
		Envelopes: map[domain.UserID]types.SealedBox{
			"alice": {Ciphertext: "YQ==", IV: "aXY=", AuthTag: "dGFn"},
			"bob":   {Ciphertext: "Yg==", IV: "aXY=", AuthTag: "dGFn"},
		},
		RetentionPolicy: types.Retention7Days,
		CreatedAt:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	b, err := realtime.EncodeBridgeMessage(m)
	require.NoError(t, err)

	got, err := realtime.DecodeBridgeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, m.Envelopes, got.Envelopes)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
}

func TestBridgeMessage_RejectsIncompletePayload(t *testing.T) {
	_, err := realtime.DecodeBridgeMessage([]byte(`{"senderId":"alice"}`))
	assert.Error(t, err)

	_, err = realtime.DecodeBridgeMessage([]byte(`{`))
	assert.Error(t, err)
}

func TestRedisBridge_UnreachableRedisStillDeliversLocally(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)

	bob, rec := f.connect(t, "bob")
	require.NoError(t, f.hub.Join(ctx, bob, conv.ID))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	bridge := realtime.NewRedisBridge(client, "", f.hub, zap.NewNop())

	require.NoError(t, bridge.PublishMessage(ctx, domain.Message{
		ID:             "m1",
		ConversationID: conv.ID,
		SenderID:       "alice",
		Recipients:     []domain.UserID{"bob"},
		CreatedAt:      time.Now().UTC(),
	}))
	assert.Len(t, rec.ofType(types.EventNewMessage), 1)
}
