// Package dashboard exposes the current position state and signal history over
// a small JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ragu-manjegowda/tqqq-200-sma/internal/storage"
	"github.com/ragu-manjegowda/tqqq-200-sma/internal/strategy"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	logger    *logrus.Logger
	port      int
	authToken string

	mu         sync.RWMutex
	evaluation *strategy.Evaluation
	evaluated  time.Time
}

type Config struct {
	Port      int
	AuthToken string
}

// StateView is the JSON shape served for the current position.
type StateView struct {
	Position       string    `json:"position"`
	LastSignalDate string    `json:"last_signal_date,omitempty"`
	Created        time.Time `json:"created"`
	SignalCount    int       `json:"signal_count"`
}

func NewServer(cfg Config, store storage.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

// SetEvaluation publishes the latest rule evaluation for /api/evaluation.
func (s *Server) SetEvaluation(ev *strategy.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluation = ev
	s.evaluated = time.Now().UTC()
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/state", s.handleGetState)
	s.router.Get("/api/evaluation", s.handleGetEvaluation)
	s.router.Get("/api/history", s.handleGetHistory)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state := s.storage.GetState()
	view := StateView{
		Position:       string(state.Position),
		LastSignalDate: state.LastSignalDate,
		Created:        state.Created,
		SignalCount:    len(s.storage.GetHistory()),
	}
	s.writeJSON(w, view)
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ev := s.evaluation
	evaluated := s.evaluated
	s.mu.RUnlock()

	if ev == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"evaluated_at": evaluated,
		"evaluation":   ev,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.storage.GetHistory())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
