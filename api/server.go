// Package api exposes the publication workflow over HTTP. Authentication
// is a shared bearer token; the actor uid arrives in a header set by the
// auth gateway in front of this service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/burrowbb/burrow/cfg"
	"github.com/burrowbb/burrow/forum"
	"github.com/burrowbb/burrow/telemetry"
)

// Server is the HTTP front of the forum core.
type Server struct {
	forum *forum.Forum
	http  *http.Server
}

// NewServer builds the router and binds the handlers.
func NewServer(f *forum.Forum) *Server {
	s := &Server{forum: f}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if cfg.Config.Prometheus.Enabled {
		r.Method(http.MethodGet, "/metrics", telemetry.GetMetricsHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Post("/topics", s.handlePostTopic)
		r.Post("/topics/{tid}", s.handleReply)
		r.Put("/posts/{pid}", s.handleEditPost)
		r.Get("/posts/{pid}", s.handleGetPost)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Config.HTTP.BindAddress, cfg.Config.HTTP.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("address", s.http.Addr).Msg("API server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
