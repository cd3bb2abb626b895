// Package server exposes the charoster query surface over HTTP and streams
// notifications to WebSocket clients at /ws.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/charoster/internal/app"
	"github.com/conneroisu/charoster/internal/config"
	"github.com/conneroisu/charoster/internal/logging"
	"github.com/conneroisu/charoster/internal/validation"
	"github.com/conneroisu/charoster/internal/websocket"
)

// Server serves one App
type Server struct {
	config *config.Config
	app    *app.App
	logger logging.Logger
	ws     *websocket.Manager

	httpServer   *http.Server
	closed       bool
	serverMutex  sync.RWMutex
	shutdownOnce sync.Once
	stopForward  context.CancelFunc
}

// New creates a server for a and starts forwarding its notifications to
// WebSocket clients
func New(a *app.App) *Server {
	s := &Server{
		config: a.Config(),
		app:    a,
		logger: a.Logger().WithComponent("server"),
	}
	s.ws = websocket.NewManager(websocket.OriginFunc(s.isAllowedOrigin), a.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	s.stopForward = cancel
	events := a.Hub().Watch()
	go func() {
		s.ws.Forward(ctx, events)
		a.Hub().Unwatch(events)
	}()
	return s
}

// Handler returns the routes wrapped in the server middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.ws.HandleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/errors", s.handleErrors)
	mux.HandleFunc("GET /api/packs", s.handlePacks)
	mux.HandleFunc("GET /api/definitions", s.handleDefinitions)
	mux.HandleFunc("GET /api/definitions/{id}", s.handleDefinition)
	mux.HandleFunc("GET /api/definitions/{id}/entity", s.handleDefinitionEntity)
	mux.HandleFunc("GET /api/definitions/{id}/value", s.handleDefinitionValue)
	mux.HandleFunc("GET /api/entities/{type}", s.handleEntityList)
	mux.HandleFunc("GET /api/entities/{type}/{id}", s.handleEntity)
	mux.HandleFunc("GET /api/images/{type}/{id}", s.handleImage)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	return s.addMiddleware(mux)
}

// Start listens on the configured address until Shutdown
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until Shutdown
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.serverMutex.Lock()
	if s.closed {
		s.serverMutex.Unlock()
		_ = listener.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Serving", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown closes the WebSocket clients and stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.stopForward()
		s.ws.Shutdown()

		s.serverMutex.Lock()
		s.closed = true
		server := s.httpServer
		s.serverMutex.Unlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// ConnectedClients returns the number of WebSocket clients
func (s *Server) ConnectedClients() int {
	return s.ws.ConnectedClients()
}

func (s *Server) addMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// isAllowedOrigin checks the origin against the configured allowed origins
func (s *Server) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	return validation.ValidateOrigin(origin, s.config.Server.AllowedOrigins) == nil
}
