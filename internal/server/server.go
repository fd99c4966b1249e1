// Package server provides the HTTP and websocket surface of wavebuddy.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/wavebuddy/internal/dialogue"
	"github.com/ayusman/wavebuddy/internal/log"
	"github.com/ayusman/wavebuddy/internal/pose"
	"github.com/ayusman/wavebuddy/internal/store"
)

// Pipeline is the part of the detection pipeline the server controls.
type Pipeline interface {
	FrameSource
	IsEnabled() bool
	SetEnabled(enabled bool)
	Active() bool
	Running() bool
	LastError() error
	OnPoses(fn func([]pose.Pose))
}

// Config holds the server configuration. Routes whose dependency is nil
// are not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Pipeline   Pipeline
	Controller *dialogue.Controller
	// Bridge carries browser speech. One is created when nil.
	Bridge *Bridge
}

// Server is the wavebuddy HTTP server.
type Server struct {
	config     Config
	router     chi.Router
	bridge     *Bridge
	httpServer *http.Server
	start      time.Time
	logger     *slog.Logger
}

// New builds the router and subscribes the websocket feed to the controller.
func New(config Config) *Server {
	s := &Server{
		config: config,
		bridge: config.Bridge,
		start:  time.Now(),
		logger: log.Component("server"),
	}
	if s.bridge == nil {
		s.bridge = NewBridge()
	}

	if config.Controller != nil {
		config.Controller.Subscribe(s.bridge.publishEvent)
	}
	if config.Pipeline != nil {
		config.Pipeline.OnPoses(s.bridge.publishPoses)
	}

	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/state", s.handleState)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.bridge.ServeHTTP)

	if s.config.Pipeline != nil {
		r.Post("/api/enabled", s.handleEnabled)
		r.Get("/api/stream", NewStreamHandler(s.config.Pipeline).ServeHTTP)
	}

	if s.config.Store != nil {
		r.Get("/api/exchanges", s.handleListExchanges)
		r.Get("/api/exchanges/{id}", s.handleGetExchange)
		r.Get("/api/stats", s.handleStats)
	}

	if s.config.Controller != nil {
		r.Post("/api/ask", s.handleAsk)
	}

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	return r
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Bridge returns the browser speech bridge.
func (s *Server) Bridge() *Bridge {
	return s.bridge
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown closes every websocket and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bridge.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
