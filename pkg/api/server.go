// Package api exposes the index over HTTP: discovery, refresh jobs,
// status, paginated listing and search, and administrative reset. All
// responses are JSON; crawling never happens on a request goroutine.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitedex/pkg/index"
	"sitedex/pkg/jobs"
	"sitedex/pkg/logging"
)

// Options configures the server.
type Options struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// Token, when set, requires "Authorization: Bearer <token>" on every
	// /api route except the health check.
	Token string

	// DefaultPageSize and MaxPageSize bound listing endpoints.
	DefaultPageSize int
	MaxPageSize     int
}

// Server wires the store and job manager behind the HTTP surface.
type Server struct {
	store   *index.Store
	manager *jobs.Manager
	lister  jobs.SiteLister
	opts    Options
	log     *logging.Logger
}

// NewServer creates the HTTP server.
func NewServer(store *index.Store, manager *jobs.Manager, lister jobs.SiteLister, opts Options) *Server {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 500
	}
	return &Server{
		store:   store,
		manager: manager,
		lister:  lister,
		opts:    opts,
		log:     logging.Get("api"),
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health())

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/sites/discover", s.discoverSites())
			r.Post("/refresh", s.refresh())
			r.Get("/status", s.status())
			r.Get("/index", s.getIndex())
			r.Get("/index/stats", s.indexStats())
			r.Get("/files", s.listFiles())
			r.Get("/search", s.search())
			r.Post("/cancel", s.cancel())
			r.Post("/clear-all", s.clearAll())
		})
	})

	return r
}

// Serve runs the server until the context ends, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}

// requireToken enforces bearer-token auth when a token is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.opts.Token)) != 1 {
			s.renderError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response failed", "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, status int, detail string) {
	s.renderJSON(w, status, map[string]string{"detail": detail})
}
