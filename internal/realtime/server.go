package realtime

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courier/internal/auth"
)

// Server upgrades authenticated HTTP requests to realtime connections.
type Server struct {
	hub      *Hub
	verifier auth.Verifier
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer returns a websocket endpoint bound to hub. allowedOrigins empty
// accepts every origin.
func NewServer(hub *Hub, verifier auth.Verifier, allowedOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Server{
		hub:      hub,
		verifier: verifier,
		logger:   logger.With(zap.String("component", "realtime-server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

// ServeHTTP authenticates before upgrading. Invalid or missing credentials
// are rejected with 401 and no socket is opened.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn := NewConn(uuid.NewString(), nil)

	p, err := s.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		s.logger.Debug("handshake rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := conn.Authenticate(p); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	sock := newSocket(ws, s.logger.With(
		zap.String("userID", p.UserID.String()),
		zap.String("connectionID", conn.ID()),
	))
	conn.out = sock

	go sock.writePump()
	if err := s.hub.Attach(conn); err != nil {
		sock.Close()
		return
	}

	// The request context ends when the handler returns, so the read loop
	// gets its own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sock.readPump(ctx, func(ctx context.Context, frame []byte) {
		s.hub.HandleFrame(ctx, conn, frame)
	})
	s.hub.Detach(conn)
}
