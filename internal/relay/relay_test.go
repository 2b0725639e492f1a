package relay_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/api"
	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/presence"
	"courier/internal/realtime"
	"courier/internal/relay"
	"courier/internal/services/directory"
	"courier/internal/services/message"
	"courier/internal/storage/memory"
)

type server struct {
	url string
	jwt *auth.JWT
}

func newServer(t *testing.T) *server {
	t.Helper()
	convs := memory.NewConversations()
	keys := memory.NewKeys()
	roster := memory.NewRoster(nil, nil)
	dir := directory.New(convs, roster, keys, zap.NewNop())
	msgs := message.New(dir, convs, memory.NewMessages(), nil, zap.NewNop())
	hub := realtime.NewHub(dir, presence.NewTracker(), nil, zap.NewNop())

	verifier, err := auth.NewJWT("relay-test-secret", "")
	require.NoError(t, err)

	handler := api.NewRouter(api.Deps{
		Directory: dir,
		Messages:  msgs,
		Keys:      keys,
		Publisher: hub,
		Verifier:  verifier,
		Realtime:  realtime.NewServer(hub, verifier, nil, zap.NewNop()),
	}).Setup()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &server{url: srv.URL, jwt: verifier}
}

func (s *server) token(t *testing.T, user domain.UserID) string {
	t.Helper()
	tok, err := s.jwt.Issue(domain.Principal{UserID: user, Role: types.RoleMember}, time.Hour)
	require.NoError(t, err)
	return tok
}

func b64(n int) string { return base64.StdEncoding.EncodeToString(make([]byte, n)) }

func TestHTTP_ErrorKindsSurvive(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	alice := relay.NewHTTP(s.url, s.token(t, "alice"), nil)
	carol := relay.NewHTTP(s.url, s.token(t, "carol"), nil)
	anon := relay.NewHTTP(s.url, "", nil)

	_, err := alice.LookupKey(ctx, "bob")
	assert.True(t, types.IsKind(err, types.KindNotFound), err)

	_, err = anon.ListConversations(ctx)
	assert.True(t, types.IsKind(err, types.KindUnauthenticated), err)

	conv, err := alice.CreateDirect(ctx, "bob", "")
	require.NoError(t, err)

	_, err = carol.FetchMessages(ctx, conv.ID, domain.MessageQuery{})
	assert.True(t, types.IsKind(err, types.KindAccessDenied), err)

	_, err = alice.UpdateRetention(ctx, conv.ID, "1y")
	assert.True(t, types.IsKind(err, types.KindValidation), err)
}

func TestHTTP_RoundTrip(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	alice := relay.NewHTTP(s.url, s.token(t, "alice"), nil)
	bob := relay.NewHTTP(s.url, s.token(t, "bob"), nil)

	require.NoError(t, alice.RegisterKey(ctx, domain.PublicKeyRecord{DeviceID: "laptop", PublicKey: b64(32)}))
	rec, err := bob.LookupKey(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceID("laptop"), rec.DeviceID)

	conv, err := alice.CreateDirect(ctx, "bob", types.Retention30Days)
	require.NoError(t, err)

	convs, err := bob.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)

	parts, err := bob.Participants(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	box := types.SealedBox{Ciphertext: b64(32), IV: b64(12), AuthTag: b64(16)}
	sent, err := alice.SendMessage(ctx, domain.PersistRequest{
		ConversationID:  conv.ID,
		Ciphertext:      b64(8),
		IV:              b64(12),
		AuthTag:         b64(16),
		Recipients:      []domain.UserID{"bob"},
		Envelopes:       map[domain.UserID]types.SealedBox{"alice": box, "bob": box},
		SenderPublicKey: b64(32),
	})
	require.NoError(t, err)
	assert.Equal(t, types.Retention30Days, sent.RetentionPolicy)

	got, err := bob.FetchMessages(ctx, conv.ID, domain.MessageQuery{SenderID: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sent.ID, got[0].ID)

	got, err = bob.FetchMessages(ctx, conv.ID, domain.MessageQuery{SenderID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, got)

	exp, err := bob.Export(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, exp.Messages, 1)
}

func TestRealtime_JoinAndReceive(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := relay.NewHTTP(s.url, s.token(t, "alice"), nil)
	conv, err := alice.CreateDirect(ctx, "bob", "")
	require.NoError(t, err)

	joined := make(chan types.JoinedEvent, 1)
	received := make(chan types.NewMessageEvent, 1)
	rt, err := relay.DialRealtime(ctx, s.url, s.token(t, "bob"), relay.Handlers{
		OnJoined:     func(e types.JoinedEvent) { joined <- e },
		OnNewMessage: func(e types.NewMessageEvent) { received <- e },
	}, zap.NewNop())
	require.NoError(t, err)
	go func() { _ = rt.Run(ctx) }()

	require.NoError(t, rt.Join(ctx, conv.ID))
	select {
	case e := <-joined:
		assert.Equal(t, conv.ID, e.ConversationID)
	case <-ctx.Done():
		t.Fatal("no joined event")
	}

	box := types.SealedBox{Ciphertext: b64(32), IV: b64(12), AuthTag: b64(16)}
	sent, err := alice.SendMessage(ctx, domain.PersistRequest{
		ConversationID:  conv.ID,
		Ciphertext:      b64(8),
		IV:              b64(12),
		AuthTag:         b64(16),
		Recipients:      []domain.UserID{"bob"},
		Envelopes:       map[domain.UserID]types.SealedBox{"alice": box, "bob": box},
		SenderPublicKey: b64(32),
	})
	require.NoError(t, err)

	select {
	case e := <-received:
		assert.Equal(t, sent.ID, e.MessageID)
		assert.Equal(t, box, e.Envelopes["bob"])
	case <-ctx.Done():
		t.Fatal("no new-message event")
	}
}

func TestRealtime_JoinReturnsDenial(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := relay.NewHTTP(s.url, s.token(t, "alice"), nil)
	conv, err := alice.CreateDirect(ctx, "bob", "")
	require.NoError(t, err)

	errs := make(chan types.ErrorEvent, 1)
	rt, err := relay.DialRealtime(ctx, s.url, s.token(t, "carol"), relay.Handlers{
		OnError: func(e types.ErrorEvent) { errs <- e },
	}, zap.NewNop())
	require.NoError(t, err)
	go func() { _ = rt.Run(ctx) }()

	err = rt.Join(ctx, conv.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied), err)
	select {
	case e := <-errs:
		assert.Equal(t, conv.ID, e.ConversationID)
	case <-ctx.Done():
		t.Fatal("error handler not called")
	}
}

func TestRealtime_JoinFailsWhenReadLoopStops(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := relay.NewHTTP(s.url, s.token(t, "alice"), nil)
	conv, err := alice.CreateDirect(ctx, "bob", "")
	require.NoError(t, err)

	rt, err := relay.DialRealtime(ctx, s.url, s.token(t, "bob"), relay.Handlers{}, zap.NewNop())
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(ctx)
	stop()
	require.NoError(t, rt.Run(runCtx))

	assert.Error(t, rt.Join(ctx, conv.ID))
}

func TestRealtime_RejectsBadToken(t *testing.T) {
	s := newServer(t)
	_, err := relay.DialRealtime(context.Background(), s.url, "garbage", relay.Handlers{}, nil)
	assert.True(t, types.IsKind(err, types.KindUnauthenticated), err)
}

func TestWebsocketURL(t *testing.T) {
	u, err := relay.WebsocketURL("https://chat.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/ws", u)

	u, err = relay.WebsocketURL("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/ws", u)

	_, err = relay.WebsocketURL("ftp://x")
	assert.Error(t, err)
}
