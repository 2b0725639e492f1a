package realtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/presence"
	"courier/internal/realtime"
	"courier/internal/services/directory"
	"courier/internal/storage/memory"
)

// recorder is an in-memory Sender.
type recorder struct {
	mu     sync.Mutex
	frames []types.Frame
	closed bool
	full   bool
}

func (r *recorder) Send(b []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return realtime.ErrSlowConsumer
	}
	var f types.Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *recorder) ofType(t string) []types.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Frame
	for _, f := range r.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

type fixture struct {
	roster *memory.Roster
	dir    *directory.Service
	hub    *realtime.Hub
}

func newFixture() *fixture {
	f := &fixture{
		roster: memory.NewRoster(map[domain.TeamID][]domain.UserID{"core": {"alice", "bob"}}, nil),
	}
	f.dir = directory.New(memory.NewConversations(), f.roster, memory.NewKeys(), zap.NewNop())
	f.hub = realtime.NewHub(f.dir, presence.NewTracker(), nil, zap.NewNop())
	return f
}

var connSeq atomic.Int64

func (f *fixture) connect(t *testing.T, user domain.UserID) (*realtime.Conn, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := realtime.NewConn(fmt.Sprintf("%s-%d", user, connSeq.Add(1)), rec)
	require.NoError(t, c.Authenticate(domain.Principal{UserID: user, Role: types.RoleMember}))
	require.NoError(t, f.hub.Attach(c))
	return c, rec
}

func TestConn_StateMachine(t *testing.T) {
	c := realtime.NewConn("c1", &recorder{})
	assert.Equal(t, realtime.StateConnecting, c.State())

	assert.ErrorIs(t, c.MarkReady(), realtime.ErrInvalidTransition)
	assert.ErrorIs(t, c.Join("x"), realtime.ErrInvalidTransition)
	assert.ErrorIs(t, c.Authenticate(domain.Principal{}), realtime.ErrInvalidTransition)

	require.NoError(t, c.Authenticate(domain.Principal{UserID: "alice"}))
	assert.Equal(t, realtime.StateAuthenticated, c.State())
	assert.ErrorIs(t, c.Authenticate(domain.Principal{UserID: "bob"}), realtime.ErrInvalidTransition)
	assert.ErrorIs(t, c.Join("x"), realtime.ErrInvalidTransition)

	require.NoError(t, c.MarkReady())
	require.NoError(t, c.Join("x"))
	require.NoError(t, c.Join("y"))
	assert.True(t, c.InRoom("x"))

	left, err := c.Leave("x")
	require.NoError(t, err)
	assert.True(t, left)
	assert.False(t, c.InRoom("x"))

	rooms, wasReady, first := c.Disconnect()
	assert.Equal(t, []domain.ConversationID{"y"}, rooms)
	assert.True(t, wasReady)
	assert.True(t, first)
	assert.Equal(t, realtime.StateDisconnected, c.State())

	_, _, first = c.Disconnect()
	assert.False(t, first)
	assert.ErrorIs(t, c.Join("z"), realtime.ErrInvalidTransition)
	assert.ErrorIs(t, c.Emit(types.EventReady, nil), realtime.ErrClosed)
}

func TestHub_AttachEmitsReady(t *testing.T) {
	f := newFixture()
	c, rec := f.connect(t, "alice")

	assert.Equal(t, realtime.StateReady, c.State())
	require.NotEmpty(t, rec.frames)
	assert.Equal(t, types.EventReady, rec.frames[0].Type)
}

// detachOnReady drops the connection from inside its own ready frame, the
// way a slow-consumer detach can land while Attach is still running.
type detachOnReady struct {
	recorder
	hub  *realtime.Hub
	conn *realtime.Conn
	once sync.Once
}

func (d *detachOnReady) Send(b []byte) error {
	d.once.Do(func() { d.hub.Detach(d.conn) })
	return d.recorder.Send(b)
}

func TestHub_DetachDuringAttachLeavesNoGhost(t *testing.T) {
	f := newFixture()
	_, observer := f.connect(t, "bob")

	out := &detachOnReady{hub: f.hub}
	c := realtime.NewConn("alice-racing", out)
	out.conn = c
	require.NoError(t, c.Authenticate(domain.Principal{UserID: "alice", Role: types.RoleMember}))

	assert.ErrorIs(t, f.hub.Attach(c), realtime.ErrClosed)
	assert.Equal(t, realtime.StateDisconnected, c.State())
	assert.NotContains(t, f.hub.Online(), domain.UserID("alice"))
	assert.Equal(t, []domain.UserID{"bob"}, f.hub.Online())

	for _, fr := range observer.ofType(types.EventPresence) {
		var ev types.PresenceEvent
		require.NoError(t, json.Unmarshal(fr.Data, &ev))
		assert.NotContains(t, ev.OnlineUserIDs, domain.UserID("alice"))
	}
}

func TestHub_JoinValidatesAccessAtJoinTime(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.dir.CreateTeam(ctx, domain.Principal{UserID: "alice"}, "core", types.Retention30Days)
	require.NoError(t, err)

	bob, rec := f.connect(t, "bob")

	// Revoked after connecting: the join must still fail.
	f.roster.RemoveMember("core", "bob")
	err = f.hub.Join(ctx, bob, conv.ID)
	assert.True(t, types.IsKind(err, types.KindAccessDenied))
	assert.False(t, bob.InRoom(conv.ID))
	require.Len(t, rec.ofType(types.EventError), 1)
	assert.Equal(t, 0, f.hub.RoomSize(conv.ID))

	f.roster.AddMember("core", "bob")
	require.NoError(t, f.hub.Join(ctx, bob, conv.ID))
	joined := rec.ofType(types.EventJoined)
	require.Len(t, joined, 1)

	var ev types.JoinedEvent
	require.NoError(t, json.Unmarshal(joined[0].Data, &ev))
	assert.Equal(t, conv.ID, ev.ConversationID)
	assert.Equal(t, types.Retention30Days, ev.RetentionPolicy)
	assert.Equal(t, types.ConversationTeam, ev.Type)
	assert.Equal(t, 1, f.hub.RoomSize(conv.ID))
}

func TestHub_JoinUnknownConversation(t *testing.T) {
	f := newFixture()
	c, rec := f.connect(t, "alice")

	err := f.hub.Join(context.Background(), c, "missing")
	assert.True(t, types.IsKind(err, types.KindNotFound))

	errs := rec.ofType(types.EventError)
	require.Len(t, errs, 1)
	var ev types.ErrorEvent
	require.NoError(t, json.Unmarshal(errs[0].Data, &ev))
	assert.Equal(t, "conversation not found", ev.Message)
}

func TestHub_PublishOnlyToJoined(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)

	alice, aliceRec := f.connect(t, "alice")
	_, bobRec := f.connect(t, "bob")
	_, carolRec := f.connect(t, "carol")
	require.NoError(t, f.hub.Join(ctx, alice, conv.ID))

	msg := domain.Message{
		ID:             "m1",
		ConversationID: conv.ID,
		SenderID:       "alice",
		Recipients:     []domain.UserID{"bob"},
		Ciphertext:     "Y2lwaGVy",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.hub.PublishMessage(ctx, msg))

	got := aliceRec.ofType(types.EventNewMessage)
	require.Len(t, got, 1)
	var ev types.NewMessageEvent
	require.NoError(t, json.Unmarshal(got[0].Data, &ev))
	assert.Equal(t, domain.MessageID("m1"), ev.MessageID)
	assert.Equal(t, "Y2lwaGVy", ev.Ciphertext)

	assert.Empty(t, bobRec.ofType(types.EventNewMessage), "bob has not joined")
	assert.Len(t, bobRec.ofType(types.EventMessageNotice), 1, "bob is notified on his private channel")
	assert.Empty(t, carolRec.ofType(types.EventNewMessage))
	assert.Empty(t, carolRec.ofType(types.EventMessageNotice))
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)

	bob, rec := f.connect(t, "bob")
	require.NoError(t, f.hub.Join(ctx, bob, conv.ID))
	require.NoError(t, f.hub.Leave(bob, conv.ID))
	assert.Len(t, rec.ofType(types.EventLeft), 1)

	require.NoError(t, f.hub.PublishMessage(ctx, domain.Message{
		ID: "m1", ConversationID: conv.ID, SenderID: "alice", Recipients: []domain.UserID{"bob"},
	}))
	assert.Empty(t, rec.ofType(types.EventNewMessage))
}

func TestHub_PresenceDebounce(t *testing.T) {
	f := newFixture()

	_, observer := f.connect(t, "bob")
	a1, _ := f.connect(t, "alice")
	a2, _ := f.connect(t, "alice")

	presenceFrames := func() []types.PresenceEvent {
		var out []types.PresenceEvent
		for _, fr := range observer.ofType(types.EventPresence) {
			var ev types.PresenceEvent
			require.NoError(t, json.Unmarshal(fr.Data, &ev))
			out = append(out, ev)
		}
		return out
	}

	// bob online, then alice online; alice's second socket adds nothing.
	require.Len(t, presenceFrames(), 2)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, presenceFrames()[1].OnlineUserIDs)

	f.hub.Detach(a1)
	assert.Len(t, presenceFrames(), 2, "closing one of two sockets must not broadcast")
	assert.Contains(t, f.hub.Online(), domain.UserID("alice"))

	f.hub.Detach(a2)
	frames := presenceFrames()
	require.Len(t, frames, 3, "closing the last socket broadcasts exactly once")
	assert.Equal(t, []domain.UserID{"bob"}, frames[2].OnlineUserIDs)

	f.hub.Detach(a2)
	assert.Len(t, presenceFrames(), 3, "detach is idempotent")
}

func TestHub_DetachClearsRooms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)

	alice, rec := f.connect(t, "alice")
	require.NoError(t, f.hub.Join(ctx, alice, conv.ID))
	f.hub.Detach(alice)

	assert.Equal(t, 0, f.hub.RoomSize(conv.ID))
	assert.True(t, rec.isClosed())
	assert.Equal(t, realtime.StateDisconnected, alice.State())
}

func TestHub_HandleFrame(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)
	alice, rec := f.connect(t, "alice")

	f.hub.HandleFrame(ctx, alice, []byte(`{"type":"join","data":{"conversationId":"`+string(conv.ID)+`"}}`))
	assert.True(t, alice.InRoom(conv.ID))

	f.hub.HandleFrame(ctx, alice, []byte(`{"type":"leave","data":{"conversationId":"`+string(conv.ID)+`"}}`))
	assert.False(t, alice.InRoom(conv.ID))

	f.hub.HandleFrame(ctx, alice, []byte(`not json`))
	f.hub.HandleFrame(ctx, alice, []byte(`{"type":"join","data":{}}`))
	f.hub.HandleFrame(ctx, alice, []byte(`{"type":"dance"}`))
	assert.Len(t, rec.ofType(types.EventError), 3)
}

func TestHub_SlowConsumerIsDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, _, err := f.dir.CreateDirect(ctx, domain.Principal{UserID: "alice"}, "bob", "")
	require.NoError(t, err)

	bob, rec := f.connect(t, "bob")
	require.NoError(t, f.hub.Join(ctx, bob, conv.ID))

	rec.mu.Lock()
	rec.full = true
	rec.mu.Unlock()

	require.NoError(t, f.hub.PublishMessage(ctx, domain.Message{ID: "m1", ConversationID: conv.ID, SenderID: "alice"}))
	assert.Eventually(t, func() bool {
		return bob.State() == realtime.StateDisconnected
	}, time.Second, 10*time.Millisecond)
	assert.NotContains(t, f.hub.Online(), domain.UserID("bob"))
}
