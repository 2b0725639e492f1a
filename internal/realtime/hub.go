package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/metrics"
	"courier/internal/presence"
)

// Hub routes frames between connections, rooms and private user channels.
type Hub struct {
	directory domain.ConversationDirectory
	presence  *presence.Tracker
	metrics   *metrics.Collector
	logger    *zap.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[domain.ConversationID]map[string]*Conn
	users map[domain.UserID]map[string]*Conn

	// presenceMu orders presence transitions with their broadcasts.
	presenceMu sync.Mutex
}

// NewHub returns a hub that validates joins against directory.
func NewHub(
	directory domain.ConversationDirectory,
	tracker *presence.Tracker,
	m *metrics.Collector,
	logger *zap.Logger,
) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = presence.NewTracker()
	}
	return &Hub{
		directory: directory,
		presence:  tracker,
		metrics:   m,
		logger:    logger.With(zap.String("component", "realtime")),
		conns:     make(map[string]*Conn),
		rooms:     make(map[domain.ConversationID]map[string]*Conn),
		users:     make(map[domain.UserID]map[string]*Conn),
	}
}

// Attach registers an authenticated connection, binds it to its user's
// private channel, records presence and emits ready. A connection detached
// while attaching is never indexed or counted as online.
func (h *Hub) Attach(c *Conn) error {
	if err := c.MarkReady(); err != nil {
		return err
	}
	p := c.Principal()
	h.metrics.ConnectionOpened()

	h.mu.Lock()
	if c.State() != StateReady {
		h.mu.Unlock()
		return ErrClosed
	}
	h.conns[c.ID()] = c
	if h.users[p.UserID] == nil {
		h.users[p.UserID] = make(map[string]*Conn)
	}
	h.users[p.UserID][c.ID()] = c
	h.mu.Unlock()

	h.logger.Debug("connection attached",
		zap.String("userID", p.UserID.String()),
		zap.String("connectionID", c.ID()),
	)

	if err := c.Emit(types.EventReady, nil); err != nil {
		h.logger.Warn("emit ready failed", zap.String("connectionID", c.ID()), zap.Error(err))
	}

	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	// Detach takes presenceMu after leaving StateReady, so this check and
	// Connect cannot interleave with its Disconnect.
	if c.State() != StateReady {
		return ErrClosed
	}
	if change, ok := h.presence.Connect(p.UserID, c.ID()); ok {
		h.broadcastPresence(change)
	} else {
		// The new connection still needs the current online set.
		_ = c.Emit(types.EventPresence, types.PresenceEvent{OnlineUserIDs: h.presence.Online()})
	}
	return nil
}

// Detach disconnects c, drops it from every index and updates presence.
// It is safe to call more than once.
func (h *Hub) Detach(c *Conn) {
	rooms, wasReady, first := c.Disconnect()
	if !first {
		return
	}
	p := c.Principal()

	h.mu.Lock()
	delete(h.conns, c.ID())
	for _, id := range rooms {
		h.removeFromRoomLocked(id, c.ID())
	}
	if set := h.users[p.UserID]; set != nil {
		delete(set, c.ID())
		if len(set) == 0 {
			delete(h.users, p.UserID)
		}
	}
	h.mu.Unlock()

	c.out.Close()
	if !wasReady {
		return
	}
	h.metrics.ConnectionClosed()
	h.logger.Debug("connection detached",
		zap.String("userID", p.UserID.String()),
		zap.String("connectionID", c.ID()),
	)

	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()
	if change, ok := h.presence.Disconnect(p.UserID, c.ID()); ok {
		h.broadcastPresence(change)
	}
}

// Join re-checks access at call time and subscribes c to the room.
// Denials are reported to the client as an error frame and returned.
func (h *Hub) Join(ctx context.Context, c *Conn, id domain.ConversationID) error {
	if c.State() != StateReady {
		return ErrInvalidTransition
	}
	conv, err := h.directory.EnsureAccess(ctx, c.Principal(), id)
	if err != nil {
		h.metrics.JoinDenied()
		_ = c.Emit(types.EventError, types.ErrorEvent{Message: types.PublicMessage(err), ConversationID: id})
		return err
	}
	if err := c.Join(id); err != nil {
		return err
	}

	h.mu.Lock()
	if _, live := h.conns[c.ID()]; !live {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.rooms[id] == nil {
		h.rooms[id] = make(map[string]*Conn)
	}
	h.rooms[id][c.ID()] = c
	h.mu.Unlock()

	h.metrics.JoinAccepted()
	return c.Emit(types.EventJoined, types.JoinedEvent{
		ConversationID:  conv.ID,
		RetentionPolicy: conv.RetentionPolicy,
		Type:            conv.Type,
	})
}

// Leave unsubscribes c from the room without any access check.
func (h *Hub) Leave(c *Conn, id domain.ConversationID) error {
	if _, err := c.Leave(id); err != nil {
		return err
	}
	h.mu.Lock()
	h.removeFromRoomLocked(id, c.ID())
	h.mu.Unlock()
	return c.Emit(types.EventLeft, types.ConversationRef{ConversationID: id})
}

// HandleFrame decodes and dispatches one inbound frame.
func (h *Hub) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	var f types.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		_ = c.Emit(types.EventError, types.ErrorEvent{Message: "malformed frame"})
		return
	}

	switch f.Type {
	case types.EventJoin, types.EventLeave:
		var ref types.ConversationRef
		if err := json.Unmarshal(f.Data, &ref); err != nil || ref.ConversationID == "" {
			_ = c.Emit(types.EventError, types.ErrorEvent{Message: "conversationId is required"})
			return
		}
		if f.Type == types.EventJoin {
			if err := h.Join(ctx, c, ref.ConversationID); err != nil {
				h.logger.Debug("join rejected",
					zap.String("userID", c.Principal().UserID.String()),
					zap.String("conversationID", ref.ConversationID.String()),
					zap.Error(err),
				)
			}
			return
		}
		if err := h.Leave(c, ref.ConversationID); err != nil {
			_ = c.Emit(types.EventError, types.ErrorEvent{Message: err.Error()})
		}
	default:
		_ = c.Emit(types.EventError, types.ErrorEvent{Message: "unsupported event " + f.Type})
	}
}

// PublishMessage sends m to every connection joined to its conversation and
// a notice to each recipient's private channel. It must only be called after
// m has been persisted.
func (h *Hub) PublishMessage(_ context.Context, m domain.Message) error {
	full, err := encodeFrame(types.EventNewMessage, types.NewMessageEventFrom(m))
	if err != nil {
		return err
	}
	notice, err := encodeFrame(types.EventMessageNotice, types.MessageNoticeEvent{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	joined := make([]*Conn, 0, len(h.rooms[m.ConversationID]))
	for _, c := range h.rooms[m.ConversationID] {
		joined = append(joined, c)
	}
	var noticed []*Conn
	for _, u := range m.Recipients {
		for _, c := range h.users[u] {
			if !c.InRoom(m.ConversationID) {
				noticed = append(noticed, c)
			}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range joined {
		if h.deliver(c, full) {
			delivered++
		}
	}
	for _, c := range noticed {
		h.deliver(c, notice)
	}
	h.metrics.Delivered(delivered)
	return nil
}

// NotifyUser sends a frame to every connection of user and returns how many
// connections accepted it.
func (h *Hub) NotifyUser(user domain.UserID, t string, data any) (int, error) {
	b, err := encodeFrame(t, data)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.users[user]))
	for _, c := range h.users[user] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if h.deliver(c, b) {
			n++
		}
	}
	return n, nil
}

// Online returns the current online set.
func (h *Hub) Online() []domain.UserID { return h.presence.Online() }

// RoomSize returns the number of connections joined to id.
func (h *Hub) RoomSize(id domain.ConversationID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[id])
}

func (h *Hub) broadcastPresence(change presence.Change) {
	h.metrics.SetOnlineUsers(len(change.Snapshot))
	b, err := encodeFrame(types.EventPresence, types.PresenceEvent{OnlineUserIDs: change.Snapshot})
	if err != nil {
		h.logger.Error("encode presence", zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.deliver(c, b)
	}
}

// deliver queues b on c. A connection whose buffer is full is detached.
func (h *Hub) deliver(c *Conn, b []byte) bool {
	err := c.emitRaw(b)
	if err == nil {
		return true
	}
	if err == ErrSlowConsumer {
		h.logger.Warn("dropping slow connection",
			zap.String("userID", c.Principal().UserID.String()),
			zap.String("connectionID", c.ID()),
		)
		go h.Detach(c)
	}
	return false
}

func (h *Hub) removeFromRoomLocked(id domain.ConversationID, connID string) {
	if room := h.rooms[id]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, id)
		}
	}
}

func encodeFrame(t string, data any) ([]byte, error) {
	f, err := types.NewFrame(t, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

var _ domain.MessagePublisher = (*Hub)(nil)
