package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/metrics"
	"courier/internal/services/directory"
	"courier/internal/services/message"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Directory *directory.Service
	Messages  *message.Service
	Keys      domain.KeyDirectory
	// Publisher fans persisted messages out to realtime subscribers.
	Publisher domain.MessagePublisher
	Verifier  auth.Verifier
	// Realtime is mounted at /ws when set.
	Realtime       http.Handler
	Metrics        *metrics.Collector
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Router builds the HTTP handler tree.
type Router struct {
	directory *directory.Service
	messages  *message.Service
	keys      domain.KeyDirectory
	publisher domain.MessagePublisher
	verifier  auth.Verifier
	realtime  http.Handler
	metrics   *metrics.Collector
	origins   []string
	logger    *zap.Logger
}

// NewRouter creates a router from deps.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Router{
		directory: deps.Directory,
		messages:  deps.Messages,
		keys:      deps.Keys,
		publisher: deps.Publisher,
		verifier:  deps.Verifier,
		realtime:  deps.Realtime,
		metrics:   deps.Metrics,
		origins:   origins,
		logger:    logger.With(zap.String("component", "api")),
	}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger, rt.metrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}
	if rt.realtime != nil {
		router.Handle("/ws", rt.realtime)
	}

	router.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(rt.verifier, rt.writeError))

		r.Post("/keys", rt.registerKey)
		r.Get("/keys/{userID}", rt.lookupKey)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", rt.listConversations)
			r.Post("/direct", rt.createDirect)
			r.Post("/team", rt.createTeam)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Patch("/retention", rt.updateRetention)
				r.Get("/participants", rt.participants)
				r.Get("/messages", rt.history)
				r.Post("/messages", rt.sendMessage)
				r.Get("/export", rt.export)
			})
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
