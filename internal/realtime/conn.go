package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

// State is the lifecycle stage of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

var (
	// ErrInvalidTransition is returned when a transition is not allowed from
	// the connection's current state.
	ErrInvalidTransition = errors.New("realtime: invalid state transition")
	// ErrSlowConsumer is returned by a Sender whose buffer is full.
	ErrSlowConsumer = errors.New("realtime: send buffer full")
	// ErrClosed is returned when sending on a closed connection.
	ErrClosed = errors.New("realtime: connection closed")
)

// Sender is the outbound half of a transport. Send must not block.
type Sender interface {
	Send(frame []byte) error
	Close()
}

// Conn is one client connection and its per-room subscriptions.
type Conn struct {
	id  string
	out Sender

	mu        sync.Mutex
	state     State
	principal domain.Principal
	rooms     map[domain.ConversationID]struct{}
}

// NewConn returns a connection in the Connecting state.
func NewConn(id string, out Sender) *Conn {
	return &Conn{
		id:    id,
		out:   out,
		state: StateConnecting,
		rooms: make(map[domain.ConversationID]struct{}),
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Principal returns the authenticated user; zero before Authenticate.
func (c *Conn) Principal() domain.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// Authenticate binds p to the connection. Connecting -> Authenticated.
func (c *Conn) Authenticate(p domain.Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting || p.UserID == "" {
		return ErrInvalidTransition
	}
	c.principal = p
	c.state = StateAuthenticated
	return nil
}

// MarkReady makes the connection eligible for rooms. Authenticated -> Ready.
func (c *Conn) MarkReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return ErrInvalidTransition
	}
	c.state = StateReady
	return nil
}

// Join records a room subscription. Joining twice is a no-op.
func (c *Conn) Join(id domain.ConversationID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return ErrInvalidTransition
	}
	c.rooms[id] = struct{}{}
	return nil
}

// Leave drops a room subscription and reports whether it existed.
func (c *Conn) Leave(id domain.ConversationID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return false, ErrInvalidTransition
	}
	_, ok := c.rooms[id]
	delete(c.rooms, id)
	return ok, nil
}

// InRoom reports whether the connection has joined id.
func (c *Conn) InRoom(id domain.ConversationID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[id]
	return ok
}

// Rooms returns the joined conversations.
func (c *Conn) Rooms() []domain.ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConversationID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// Disconnect moves to the terminal state and returns the rooms that were
// joined. first is false when the connection was already disconnected.
func (c *Conn) Disconnect() (rooms []domain.ConversationID, wasReady bool, first bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return nil, false, false
	}
	wasReady = c.state == StateReady
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.rooms = make(map[domain.ConversationID]struct{})
	c.state = StateDisconnected
	return rooms, wasReady, true
}

// Emit marshals a frame of type t and queues it.
func (c *Conn) Emit(t string, data any) error {
	f, err := types.NewFrame(t, data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.emitRaw(b)
}

func (c *Conn) emitRaw(b []byte) error {
	if c.State() == StateDisconnected {
		return ErrClosed
	}
	return c.out.Send(b)
}
