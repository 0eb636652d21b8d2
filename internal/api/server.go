package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smcopilot/copilot-core/internal/hub"
	"github.com/smcopilot/copilot-core/internal/infrastructure/config"
	"github.com/smcopilot/copilot-core/internal/infrastructure/logging"
	"github.com/smcopilot/copilot-core/internal/locks"
	"github.com/smcopilot/copilot-core/internal/logbook"
	"github.com/smcopilot/copilot-core/internal/pilot"
	"github.com/smcopilot/copilot-core/internal/scheduler"
	"github.com/smcopilot/copilot-core/internal/session"
)

// Server is the local HTTP surface: the WebSocket push endpoint, the
// logbook query/export API, manual actions, and settings. It binds to
// loopback by default; it is a companion process, not a public service.
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	hub       *hub.Hub
	locks     *locks.Coordinator
	logbook   *logbook.Store
	sessions  *session.Registry
	runner    *pilot.Runner
	scheduler *scheduler.Scheduler
	version   string

	httpServer *http.Server
}

// New wires the HTTP server over the shared components.
func New(
	cfg *config.Config,
	logger *logging.Logger,
	h *hub.Hub,
	lockCoord *locks.Coordinator,
	book *logbook.Store,
	sessions *session.Registry,
	runner *pilot.Runner,
	sched *scheduler.Scheduler,
	version string,
) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "api"),
		hub:       h,
		locks:     lockCoord,
		logbook:   book,
		sessions:  sessions,
		runner:    runner,
		scheduler: sched,
		version:   version,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      s.routes(),
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  cfg.GetIdleTimeout(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	wsPath := s.cfg.WebSocket.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)

		r.Get("/logbook", s.handleLogbookQuery)
		r.Delete("/logbook", s.handleLogbookDelete)
		r.Get("/logbook/export", s.handleLogbookExport)

		r.Get("/settings", s.handleSettingsGet)
		r.Put("/settings", s.handleSettingsPut)
		r.Post("/pause", s.handlePause)

		r.Post("/actions/repair", s.handleActionRepair)
		r.Post("/actions/depart", s.handleActionDepart)
		r.Post("/actions/bulkbuy", s.handleActionBulkBuy)
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails. It returns http.ErrServerClosed
// after a clean Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
