package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arlenko/cellhive/pkg/admin/graphqlapi"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

// Server is the operator-facing HTTP surface over one cell's
// Supervisor: health, decommission control, downed-participant
// queries, manual snapshots, a live commit-state feed, and (optionally)
// a read-only GraphQL introspection API.
type Server struct {
	cfg        *Config
	router     *chi.Mux
	httpSrv    *http.Server
	startTime  time.Time
	commitFeed *CommitFeed
}

// New builds a Server. sup and decomm must be wired against the same
// cell's coordinator state.
func New(cfg *Config, sup *txsupervisor.Supervisor, decomm *txsupervisor.DecommissionController) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
		commitFeed: NewCommitFeed(sup, cfg.CommitFeedPollInterval),
	}

	s.setupMiddleware()
	if err := s.setupRoutes(sup, decomm); err != nil {
		return nil, err
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	if s.cfg.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.cfg.AllowedOrigins) > 0 {
			origin = s.cfg.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes(sup *txsupervisor.Supervisor, decomm *txsupervisor.DecommissionController) error {
	h := NewHandlers(sup, decomm)

	s.router.Get("/_health", h.Health(s.startTime))
	s.router.Get("/_commits", h.Commits)
	s.router.Get("/_participants/downed", h.DownedParticipants)
	s.router.Post("/_decommission", h.TriggerDecommission)
	s.router.Post("/_decommission/rescind", h.RescindDecommission)
	s.router.Get("/_decommission", h.DecommissionStatus)
	s.router.Post("/_snapshot", h.TriggerSnapshot)

	s.router.Get("/_ws/commits", s.commitFeed.Handle)

	if s.cfg.EnableGraphQL {
		gqlHandler, err := graphqlapi.NewHandler(sup)
		if err != nil {
			return fmt.Errorf("admin: build graphql handler: %w", err)
		}
		s.router.Post("/graphql", gqlHandler.ServeHTTP)
		s.router.Get("/graphiql", graphqlapi.GraphiQLHandler())
	}

	return nil
}

// Start begins serving and the commit feed poller in background
// goroutines. A bind failure surfaces asynchronously through the
// returned error channel's first (and only) value.
func (s *Server) Start() <-chan error {
	s.commitFeed.Start()
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("admin: serve: %w", err)
			return
		}
		errChan <- nil
	}()
	return errChan
}

// Shutdown gracefully stops the HTTP server and commit feed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.commitFeed.Close()
	return s.httpSrv.Shutdown(ctx)
}
