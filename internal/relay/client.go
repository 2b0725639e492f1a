package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

const (
	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
	joinWait      = 5 * time.Second
)

// ErrNotRunning is returned to a pending join when the read loop stops.
var ErrNotRunning = errors.New("relay: realtime read loop stopped")

// Handlers receive server events. Nil handlers are skipped. They run on the
// read loop and must not block.
type Handlers struct {
	OnNewMessage func(types.NewMessageEvent)
	OnNotice     func(types.MessageNoticeEvent)
	OnPresence   func(types.PresenceEvent)
	OnJoined     func(types.JoinedEvent)
	OnLeft       func(types.ConversationRef)
	OnError      func(types.ErrorEvent)
}

// Realtime is the client side of the realtime socket.
type Realtime struct {
	ws       *websocket.Conn
	handlers Handlers
	logger   *zap.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[domain.ConversationID][]chan error
}

var _ domain.RealtimeClient = (*Realtime)(nil)

// WebsocketURL maps an http(s) server base to its realtime endpoint.
func WebsocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("relay: unsupported scheme " + u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// DialRealtime opens the socket and waits for the server's ready frame.
func DialRealtime(ctx context.Context, base, token string, h Handlers, logger *zap.Logger) (*Realtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint, err := WebsocketURL(base)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	ws, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, types.Unauthenticated("relay.DialRealtime", "realtime handshake rejected")
		}
		return nil, err
	}

	_ = ws.SetReadDeadline(time.Now().Add(handshakeWait))
	var f types.Frame
	if err := ws.ReadJSON(&f); err != nil {
		_ = ws.Close()
		return nil, err
	}
	if f.Type != types.EventReady {
		_ = ws.Close()
		return nil, errors.New("relay: expected ready frame, got " + f.Type)
	}
	_ = ws.SetReadDeadline(time.Time{})

	return &Realtime{
		ws:       ws,
		handlers: h,
		logger:   logger,
		pending:  make(map[domain.ConversationID][]chan error),
	}, nil
}

// Join subscribes this connection to id and waits for the server's joined or
// error event for it. Run must be reading frames for Join to complete.
func (r *Realtime) Join(ctx context.Context, id domain.ConversationID) error {
	const op = "relay.Join"

	ch := make(chan error, 1)
	r.pendingMu.Lock()
	r.pending[id] = append(r.pending[id], ch)
	r.pendingMu.Unlock()

	if err := r.write(types.EventJoin, types.ConversationRef{ConversationID: id}); err != nil {
		r.forget(id, ch)
		return err
	}

	timer := time.NewTimer(joinWait)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-timer.C:
		r.forget(id, ch)
		return types.NewError(types.KindInternal, op, "join not acknowledged", nil)
	case <-ctx.Done():
		r.forget(id, ch)
		return ctx.Err()
	}
}

// Leave unsubscribes from id.
func (r *Realtime) Leave(_ context.Context, id domain.ConversationID) error {
	return r.write(types.EventLeave, types.ConversationRef{ConversationID: id})
}

// Run dispatches inbound frames until ctx is done or the socket closes.
func (r *Realtime) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	defer r.settleAll(ErrNotRunning)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-done:
		}
	}()
	for {
		var f types.Frame
		if err := r.ws.ReadJSON(&f); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		r.dispatch(f)
	}
}

// Close sends a close frame and closes the socket.
func (r *Realtime) Close() error {
	r.writeMu.Lock()
	_ = r.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	r.writeMu.Unlock()
	return r.ws.Close()
}

func (r *Realtime) write(t string, data any) error {
	f, err := types.NewFrame(t, data)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return r.ws.WriteJSON(f)
}

func (r *Realtime) dispatch(f types.Frame) {
	var err error
	switch f.Type {
	case types.EventNewMessage:
		err = decodeTo(f.Data, r.handlers.OnNewMessage)
	case types.EventMessageNotice:
		err = decodeTo(f.Data, r.handlers.OnNotice)
	case types.EventPresence:
		err = decodeTo(f.Data, r.handlers.OnPresence)
	case types.EventJoined:
		err = decodeTo(f.Data, func(ev types.JoinedEvent) {
			r.settle(ev.ConversationID, nil)
			if r.handlers.OnJoined != nil {
				r.handlers.OnJoined(ev)
			}
		})
	case types.EventLeft:
		err = decodeTo(f.Data, r.handlers.OnLeft)
	case types.EventError:
		err = decodeTo(f.Data, func(ev types.ErrorEvent) {
			if ev.ConversationID != "" {
				r.settle(ev.ConversationID, types.AccessDenied("relay.Join", ev.Message))
			}
			if r.handlers.OnError != nil {
				r.handlers.OnError(ev)
			}
		})
	default:
		r.logger.Debug("ignoring frame", zap.String("type", f.Type))
	}
	if err != nil {
		r.logger.Warn("malformed frame", zap.String("type", f.Type), zap.Error(err))
	}
}

// settle completes the oldest pending join for id.
func (r *Realtime) settle(id domain.ConversationID, err error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	waiters := r.pending[id]
	if len(waiters) == 0 {
		return
	}
	waiters[0] <- err
	if len(waiters) == 1 {
		delete(r.pending, id)
		return
	}
	r.pending[id] = waiters[1:]
}

func (r *Realtime) settleAll(err error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, waiters := range r.pending {
		for _, ch := range waiters {
			ch <- err
		}
		delete(r.pending, id)
	}
}

func (r *Realtime) forget(id domain.ConversationID, ch chan error) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	waiters := r.pending[id]
	for i, w := range waiters {
		if w == ch {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(r.pending, id)
		return
	}
	r.pending[id] = waiters
}

func decodeTo[T any](data json.RawMessage, fn func(T)) error {
	if fn == nil {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	fn(v)
	return nil
}
