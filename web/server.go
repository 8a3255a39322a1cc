// Package web serves the commander's JSON API, live WebSocket feeds and a
// status page.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mbocsi/radiofleet/fleet"
	"github.com/mbocsi/radiofleet/services"
)

type Server struct {
	ctx       context.Context
	services  *services.ServiceContainer
	rows      *fleet.RowBroker
	templates *Templates

	// target viewers share one poll loop, held while any are connected
	watch   *fleet.HoldAction
	vmu     sync.Mutex
	viewers map[*wsClient]struct{}
}

// NewServer builds the web surface. ctx bounds background registry polling.
func NewServer(ctx context.Context, svc *services.ServiceContainer, rows *fleet.RowBroker) *Server {
	s := &Server{
		ctx:       ctx,
		services:  svc,
		rows:      rows,
		templates: NewTemplates(),
		viewers:   make(map[*wsClient]struct{}),
	}
	s.watch = svc.Target.WatchTargets(s.pushTargets)
	return s
}

// Routes returns the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.HandleHome)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.HandleStatus)
		r.Get("/transport", s.HandleTransport)
		r.Get("/sensors", s.HandleSensors)
		r.Get("/sensors/{name}", s.HandleSensorDetail)
		r.Get("/targets", s.HandleTargets)
		r.Post("/targets/refresh", s.HandleRefreshTargets)
		r.Post("/jobs", s.HandleRequestJob)
		r.Get("/rows", s.HandleRows)
	})
	r.Get("/ws/rows", s.HandleRowStream)
	r.Get("/ws/targets", s.HandleTargetStream)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		s.watch.Release()
	}()

	slog.Info("Starting web server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Web server stopped", "addr", addr)
	return nil
}
