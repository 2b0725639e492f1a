package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"courier/internal/api"
	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/metrics"
	"courier/internal/presence"
	"courier/internal/purge"
	"courier/internal/realtime"
	"courier/internal/services/directory"
	"courier/internal/services/message"
	"courier/internal/storage/memory"
	"courier/internal/storage/postgres"
)

// Stores are the repositories a server node runs on.
type Stores struct {
	Conversations domain.ConversationRepository
	Messages      domain.MessageRepository
	Keys          domain.KeyDirectory
	Roster        domain.TeamRoster
	close         func()
}

// Close releases the underlying connections, if any.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores returns Postgres repositories when cfg.Database.URL is set and
// in-memory ones otherwise. The configured roster is seeded in both cases.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	teams := cfg.Roster.TeamMap()
	admins := cfg.Roster.AdminIDs()

	if cfg.Database.URL == "" {
		return &Stores{
			Conversations: memory.NewConversations(),
			Messages:      memory.NewMessages(),
			Keys:          memory.NewKeys(),
			Roster:        memory.NewRoster(teams, admins),
		}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	roster := postgres.NewRoster(pool)
	if err := seedRoster(ctx, roster, teams, admins); err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{
		Conversations: postgres.NewConversations(pool),
		Messages:      postgres.NewMessages(pool),
		Keys:          postgres.NewKeys(pool),
		Roster:        roster,
		close:         pool.Close,
	}, nil
}

func seedRoster(ctx context.Context, r *postgres.Roster, teams map[domain.TeamID][]domain.UserID, admins []domain.UserID) error {
	for team, members := range teams {
		if err := r.SetTeam(ctx, team, members...); err != nil {
			return fmt.Errorf("seed team %s: %w", team, err)
		}
	}
	for _, a := range admins {
		if err := r.SetAdmin(ctx, a, true); err != nil {
			return fmt.Errorf("seed admin %s: %w", a, err)
		}
	}
	return nil
}

// Server is a fully wired server node.
type Server struct {
	Config    *Config
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	JWT       *auth.JWT
	Stores    *Stores
	Directory *directory.Service
	Messages  *message.Service
	Hub       *realtime.Hub
	Handler   http.Handler

	redis  *redis.Client
	bridge *realtime.RedisBridge
}

// NewServer builds the dependency graph for cfg.
func NewServer(ctx context.Context, cfg *Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	jwt, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New("courier")
	dir := directory.New(stores.Conversations, stores.Roster, stores.Keys, logger)
	msgs := message.New(dir, stores.Conversations, stores.Messages, m, logger)
	hub := realtime.NewHub(dir, presence.NewTracker(), m, logger)

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		JWT:       jwt,
		Stores:    stores,
		Directory: dir,
		Messages:  msgs,
		Hub:       hub,
	}

	var publisher domain.MessagePublisher = hub
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		s.redis = redis.NewClient(opt)
		s.bridge = realtime.NewRedisBridge(s.redis, cfg.Redis.Channel, hub, logger)
		publisher = s.bridge
	}

	s.Handler = api.NewRouter(api.Deps{
		Directory:      dir,
		Messages:       msgs,
		Keys:           stores.Keys,
		Publisher:      publisher,
		Verifier:       jwt,
		Realtime:       realtime.NewServer(hub, jwt, cfg.HTTP.AllowedOrigins, logger),
		Metrics:        m,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	}).Setup()
	return s, nil
}

// Run serves HTTP, the Redis bridge and the purge loop until ctx is done,
// then shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.HTTP.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var worker *purge.Worker
	if s.redis != nil {
		w, err := purge.NewWorker(s.Config.Redis.URL, s.purger(), s.Config.Purge.Interval, s.Logger)
		if err != nil {
			return err
		}
		worker = w
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Logger.Info("starting server",
			zap.String("address", srv.Addr),
			zap.String("environment", s.Config.Log.Env),
			zap.Bool("postgres", s.Config.Database.URL != ""),
			zap.Bool("redis", s.redis != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if worker != nil {
		g.Go(func() error { return s.bridge.Run(ctx) })
		g.Go(func() error { return worker.Run(ctx) })
	} else {
		g.Go(func() error {
			purge.RunTicker(ctx, s.purger(), s.Config.Purge.Interval, s.Logger)
			return nil
		})
	}
	return g.Wait()
}

// PurgeOnce runs a single expiry sweep.
func (s *Server) PurgeOnce(ctx context.Context) (int64, error) {
	return purge.Once(ctx, s.purger(), s.Logger)
}

func (s *Server) purger() purge.Purger { return s.Messages }

// Close releases the database pool and the Redis client.
func (s *Server) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.Stores.Close()
}
