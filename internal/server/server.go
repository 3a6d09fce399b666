// Package server provides the HTTP server for the mudra web UI.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration. Routes are only registered for
// the parts that are set.
type Config struct {
	StaticDir   string
	Store       *store.Store
	Session     api.Session
	Credentials api.Credentials
	Voices      api.Voices
	Frames      FrameSource
	Events      http.Handler
	// CORSOrigins enables CORS for a separately served UI. Browser requests
	// that change state are refused from any other foreign origin.
	CORSOrigins []string
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config  Config
	router  *mux.Router
	handler http.Handler
	start   time.Time

	// baseCtx parents every request served by ListenAndServe; Shutdown
	// cancels it so long-lived streams end.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.router.Use(s.checkOrigin)
	s.setupRoutes()

	s.handler = s.router
	if len(config.CORSOrigins) > 0 {
		s.handler = cors.New(cors.Options{
			AllowedOrigins: config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}).Handler(s.router)
	}
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Session != nil {
		api.NewSessionHandler(s.config.Session, s.config.Credentials, s.config.Voices).Register(s.router)
	}

	if s.config.Credentials != nil && s.config.Voices != nil {
		api.NewSettingsHandler(s.config.Credentials, s.config.Voices).Register(s.router)
	}

	if s.config.Store != nil {
		api.NewTranslationHandler(s.config.Store).Register(s.router)
	}

	if s.config.Frames != nil {
		s.router.Handle("/api/stream", NewStreamHandler(s.config.Frames)).Methods(http.MethodGet)
	}

	if s.config.Events != nil {
		s.router.Handle("/api/events", s.config.Events)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// checkOrigin refuses state-changing requests sent by pages from other
// origins. Those are simple requests and never see a CORS preflight.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			if !events.OriginAllowed(r, s.config.CORSOrigins) {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe. Requests
// still running, such as camera previews, are cancelled first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
